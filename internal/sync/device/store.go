package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
)

// Store is the device-local outbox over an embedded SQLite database. It is
// single-writer: one agent process owns the file.
type Store struct {
	conn *gorm.DB
}

// OpenStore opens (or creates) the agent database at path.
func OpenStore(path string) (*Store, error) {
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "opening agent database")
	}
	if err := conn.AutoMigrate(&models.DeviceOutboxEvent{}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrating agent database")
	}
	return &Store{conn: conn}, nil
}

// NewStore wraps an already-open connection. Used by tests and by callers
// that share the agent database with the device app.
func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// Enqueue records a completed local operation for transmission. The returned
// event id doubles as the end-to-end idempotency key.
func (s *Store) Enqueue(ctx context.Context, operationType enums.SyncOperationType, payload any) (uuid.UUID, error) {
	if !operationType.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid operation type %q", operationType))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encoding payload")
	}

	event := &models.DeviceOutboxEvent{
		EventID:       uuid.New(),
		OperationType: operationType,
		Payload:       body,
		Status:        enums.SyncEventStatusPending,
	}
	if err := s.conn.WithContext(ctx).Create(event).Error; err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueueing event")
	}
	return event.EventID, nil
}

// PendingBatch returns the oldest pending events in enqueue order.
func (s *Store) PendingBatch(ctx context.Context, limit int) ([]models.DeviceOutboxEvent, error) {
	if limit <= 0 {
		limit = 25
	}
	var events []models.DeviceOutboxEvent
	err := s.conn.WithContext(ctx).
		Where("status = ?", enums.SyncEventStatusPending).
		Order("seq ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending events")
	}
	return events, nil
}

// MarkSynced finalizes an acknowledged event.
func (s *Store) MarkSynced(ctx context.Context, eventID uuid.UUID) error {
	now := time.Now()
	err := s.conn.WithContext(ctx).
		Model(&models.DeviceOutboxEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":        enums.SyncEventStatusSynced,
			"synced_at":     &now,
			"error_message": nil,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking event synced")
	}
	return nil
}

// MarkFailed parks an event for operator attention. Failed events are never
// retried automatically and never purged until acknowledged.
func (s *Store) MarkFailed(ctx context.Context, eventID uuid.UUID, message string) error {
	err := s.conn.WithContext(ctx).
		Model(&models.DeviceOutboxEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":        enums.SyncEventStatusFailed,
			"error_message": &message,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking event failed")
	}
	return nil
}

// RecordAttempt notes one unsuccessful delivery. When the attempt count
// reaches maxAttempts the event flips to failed instead of retrying forever.
func (s *Store) RecordAttempt(ctx context.Context, eventID uuid.UUID, message string, maxAttempts int) error {
	now := time.Now()
	updates := map[string]any{
		"sync_attempts":     gorm.Expr("sync_attempts + 1"),
		"last_sync_attempt": &now,
		"error_message":     &message,
	}
	err := s.conn.WithContext(ctx).
		Model(&models.DeviceOutboxEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording sync attempt")
	}

	if maxAttempts > 0 {
		err = s.conn.WithContext(ctx).
			Model(&models.DeviceOutboxEvent{}).
			Where("event_id = ? AND status = ? AND sync_attempts >= ?",
				eventID, enums.SyncEventStatusPending, maxAttempts).
			Update("status", enums.SyncEventStatusFailed).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failing exhausted event")
		}
	}
	return nil
}

// Requeue puts a failed event back in the pending queue after an operator
// acknowledged and resolved the cause.
func (s *Store) Requeue(ctx context.Context, eventID uuid.UUID) error {
	result := s.conn.WithContext(ctx).
		Model(&models.DeviceOutboxEvent{}).
		Where("event_id = ? AND status = ?", eventID, enums.SyncEventStatusFailed).
		Updates(map[string]any{
			"status":        enums.SyncEventStatusPending,
			"sync_attempts": 0,
			"error_message": nil,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "requeueing event")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "event is not failed")
	}
	return nil
}

// Status reports the backlog counts surfaced to operators.
func (s *Store) Status(ctx context.Context) (*syncpkg.StatusReport, error) {
	var report syncpkg.StatusReport
	err := s.conn.WithContext(ctx).
		Model(&models.DeviceOutboxEvent{}).
		Where("status = ?", enums.SyncEventStatusPending).
		Count(&report.Pending).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting pending events")
	}
	err = s.conn.WithContext(ctx).
		Model(&models.DeviceOutboxEvent{}).
		Where("status = ?", enums.SyncEventStatusFailed).
		Count(&report.Failed).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting failed events")
	}
	return &report, nil
}

// PurgeSynced deletes synced events older than the retention cutoff. Failed
// events are kept regardless of age.
func (s *Store) PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.conn.WithContext(ctx).
		Where("status = ? AND synced_at < ?", enums.SyncEventStatusSynced, olderThan).
		Delete(&models.DeviceOutboxEvent{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "purging synced events")
	}
	return result.RowsAffected, nil
}
