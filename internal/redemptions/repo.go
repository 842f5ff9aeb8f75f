package redemptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Repository persists redemption attempts and performs the guarded quota
// consumption on tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, attempt *models.Redemption) error
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.Redemption, error)
	ListByTicket(ctx context.Context, tenantID, ticketID uuid.UUID, limit int) ([]models.Redemption, error)
	// ConsumeQuota increments the ticket's used counter only while the ticket
	// is active and the increment stays within quota. A false return means
	// the guard failed, which the caller treats as an exhausted ticket.
	ConsumeQuota(ctx context.Context, ticketID uuid.UUID, amount int) (bool, error)
	CountPasses(ctx context.Context, ticketID uuid.UUID) (int64, error)
	LastPassAt(ctx context.Context, ticketID uuid.UUID) (*time.Time, error)
}

type repository struct {
	conn *gorm.DB
}

// NewRepository builds a gorm-backed redemption repository.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{conn: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{conn: tx}
}

func (r *repository) Insert(ctx context.Context, attempt *models.Redemption) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return r.conn.WithContext(ctx).Create(attempt).Error
}

func (r *repository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.Redemption, error) {
	var attempt models.Redemption
	err := r.conn.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) ListByTicket(ctx context.Context, tenantID, ticketID uuid.UUID, limit int) ([]models.Redemption, error) {
	if limit <= 0 {
		limit = 50
	}
	var attempts []models.Redemption
	err := r.conn.WithContext(ctx).
		Where("tenant_id = ? AND ticket_id = ?", tenantID, ticketID).
		Order("attempted_at DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) ConsumeQuota(ctx context.Context, ticketID uuid.UUID, amount int) (bool, error) {
	result := r.conn.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ? AND used + ? <= quota_or_minutes",
			ticketID, enums.TicketStatusActive, amount).
		Update("used", gorm.Expr("used + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CountPasses(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	var count int64
	err := r.conn.WithContext(ctx).
		Model(&models.Redemption{}).
		Where("ticket_id = ? AND result = ?", ticketID, enums.RedemptionResultPass).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) LastPassAt(ctx context.Context, ticketID uuid.UUID) (*time.Time, error) {
	var attempt models.Redemption
	err := r.conn.WithContext(ctx).
		Where("ticket_id = ? AND result = ?", ticketID, enums.RedemptionResultPass).
		Order("attempted_at DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at := attempt.AttemptedAt
	return &at, nil
}
