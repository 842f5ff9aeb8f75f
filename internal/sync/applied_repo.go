package sync

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
)

// AppliedRepository is the durable at-most-once guard on the server: one row
// per applied event id, holding the recorded outcome for replays.
type AppliedRepository interface {
	Insert(ctx context.Context, applied *models.SyncAppliedEvent) error
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.SyncAppliedEvent, error)
}

type appliedRepository struct {
	conn *gorm.DB
}

// NewAppliedRepository builds a gorm-backed applied-event repository.
func NewAppliedRepository(conn *gorm.DB) AppliedRepository {
	return &appliedRepository{conn: conn}
}

func (r *appliedRepository) Insert(ctx context.Context, applied *models.SyncAppliedEvent) error {
	return r.conn.WithContext(ctx).Create(applied).Error
}

func (r *appliedRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.SyncAppliedEvent, error) {
	var applied models.SyncAppliedEvent
	err := r.conn.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&applied).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &applied, nil
}
