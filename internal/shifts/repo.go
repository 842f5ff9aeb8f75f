package shifts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Repository manages persistence for cash-drawer shifts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shift *models.Shift) error
	GetByID(ctx context.Context, tenantID, shiftID uuid.UUID) (*models.Shift, error)
	GetOpenByDevice(ctx context.Context, deviceID uuid.UUID) (*models.Shift, error)
	// Accumulate adds an amount to the open shift's sale or refund total.
	// Returns false when the shift is not open anymore.
	Accumulate(ctx context.Context, shiftID uuid.UUID, kind enums.SaleKind, amount decimal.Decimal) (bool, error)
	// Close flips an open shift to closed. cash_expected and cash_diff are
	// computed inside the UPDATE from the row's committed totals, so sales
	// landing after the caller last read the shift still settle into the
	// stored figures. Returns false when the shift was already closed,
	// leaving the stored figures untouched.
	Close(ctx context.Context, shiftID uuid.UUID, closedBy uuid.UUID, closeAt time.Time, counted decimal.Decimal) (bool, error)
	IncrementReprint(ctx context.Context, shiftID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a shift repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, shift *models.Shift) error {
	return r.db.WithContext(ctx).Create(shift).Error
}

func (r *repository) GetByID(ctx context.Context, tenantID, shiftID uuid.UUID) (*models.Shift, error) {
	var shift models.Shift
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", shiftID, tenantID).
		First(&shift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shift, nil
}

func (r *repository) GetOpenByDevice(ctx context.Context, deviceID uuid.UUID) (*models.Shift, error) {
	var shift models.Shift
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, enums.ShiftStatusOpen).
		First(&shift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shift, nil
}

func (r *repository) Accumulate(ctx context.Context, shiftID uuid.UUID, kind enums.SaleKind, amount decimal.Decimal) (bool, error) {
	column := "total_sales"
	if kind == enums.SaleKindRefund {
		column = "total_refunds"
	}
	result := r.db.WithContext(ctx).Model(&models.Shift{}).
		Where("id = ? AND status = ?", shiftID, enums.ShiftStatusOpen).
		Update(column, gorm.Expr(column+" + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Close(ctx context.Context, shiftID uuid.UUID, closedBy uuid.UUID, closeAt time.Time, counted decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Shift{}).
		Where("id = ? AND status = ?", shiftID, enums.ShiftStatusOpen).
		Updates(map[string]any{
			"status":        enums.ShiftStatusClosed,
			"closed_by":     closedBy,
			"close_at":      closeAt,
			"cash_counted":  counted,
			"cash_expected": gorm.Expr("cash_open + total_sales - total_refunds"),
			"cash_diff":     gorm.Expr("? - (cash_open + total_sales - total_refunds)", counted),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) IncrementReprint(ctx context.Context, shiftID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Shift{}).
		Where("id = ? AND status = ?", shiftID, enums.ShiftStatusOpen).
		Update("reprint_count", gorm.Expr("reprint_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
