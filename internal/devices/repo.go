package devices

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
)

// Repository manages persistence for registered devices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, deviceID uuid.UUID) (*models.Device, error)
	TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a device repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, device *models.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

func (r *repository) GetByID(ctx context.Context, deviceID uuid.UUID) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("id = ?", deviceID).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *repository) TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Device{}).
		Where("id = ?", deviceID).
		Update("last_seen_at", at).Error
}
