package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Shift is one cash-drawer session on one device. Totals accumulate while
// the shift is open; the row becomes immutable once closed.
type Shift struct {
	ID       uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TenantID uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;index"`
	StoreID  uuid.UUID         `gorm:"column:store_id;type:uuid;not null;index"`
	DeviceID uuid.UUID         `gorm:"column:device_id;type:uuid;not null;index"`
	Status   enums.ShiftStatus `gorm:"column:status;type:shift_status_enum;not null;default:'open'"`

	OpenedBy uuid.UUID       `gorm:"column:opened_by;type:uuid;not null"`
	OpenAt   time.Time       `gorm:"column:open_at;not null"`
	CashOpen decimal.Decimal `gorm:"column:cash_open;type:numeric(12,2);not null"`

	ClosedBy     *uuid.UUID       `gorm:"column:closed_by;type:uuid"`
	CloseAt      *time.Time       `gorm:"column:close_at"`
	CashExpected *decimal.Decimal `gorm:"column:cash_expected;type:numeric(12,2)"`
	CashCounted  *decimal.Decimal `gorm:"column:cash_counted;type:numeric(12,2)"`
	CashDiff     *decimal.Decimal `gorm:"column:cash_diff;type:numeric(12,2)"`

	TotalSales     decimal.Decimal `gorm:"column:total_sales;type:numeric(12,2);not null;default:0"`
	TotalRefunds   decimal.Decimal `gorm:"column:total_refunds;type:numeric(12,2);not null;default:0"`
	TotalDiscounts decimal.Decimal `gorm:"column:total_discounts;type:numeric(12,2);not null;default:0"`
	TotalTaxes     decimal.Decimal `gorm:"column:total_taxes;type:numeric(12,2);not null;default:0"`
	ReprintCount   int             `gorm:"column:reprint_count;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
