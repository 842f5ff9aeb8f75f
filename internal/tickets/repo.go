package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Repository manages persistence for tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, tickets []*models.Ticket) error
	GetByID(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error)
	GetByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error)
	GetByShortCode(ctx context.Context, tenantID uuid.UUID, shortCode string) (*models.Ticket, error)
	ListBySale(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.Ticket, error)
	// ExistingShortCodes returns which of the candidate codes are taken.
	ExistingShortCodes(ctx context.Context, codes []string) (map[string]struct{}, error)
	// UpdateStatus flips an active ticket to a terminal status. Returns
	// false when the ticket was not active.
	UpdateStatus(ctx context.Context, ticketID uuid.UUID, status enums.TicketStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ticket repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(tickets).Error
}

func (r *repository) GetByID(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", ticketID, tenantID).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) GetByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Where("qr_token = ?", qrToken).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) GetByShortCode(ctx context.Context, tenantID uuid.UUID, shortCode string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND short_code = ?", tenantID, shortCode).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) ListBySale(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.Ticket, error) {
	var rows []models.Ticket
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ExistingShortCodes(ctx context.Context, codes []string) (map[string]struct{}, error) {
	if len(codes) == 0 {
		return map[string]struct{}{}, nil
	}
	var taken []string
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("short_code IN ?", codes).
		Pluck("short_code", &taken).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(taken))
	for _, code := range taken {
		out[code] = struct{}{}
	}
	return out, nil
}

func (r *repository) UpdateStatus(ctx context.Context, ticketID uuid.UUID, status enums.TicketStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusActive).
		Update("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
