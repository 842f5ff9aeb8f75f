package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Sale is the completed transaction handed over by the sales path. It is the
// issuance trigger and the source of shift totals.
type Sale struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	StoreID    uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index"`
	DeviceID   uuid.UUID       `gorm:"column:device_id;type:uuid;not null"`
	ShiftID    *uuid.UUID      `gorm:"column:shift_id;type:uuid;index"`
	Kind       enums.SaleKind  `gorm:"column:kind;type:sale_kind_enum;not null;default:'sale'"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	OccurredAt time.Time       `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`

	LineItems []SaleLineItem `gorm:"foreignKey:SaleID"`
}

// SaleLineItem links a sale to the package it sold and the ticket quantity
// to mint for that line.
type SaleLineItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SaleID    uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index"`
	PackageID uuid.UUID       `gorm:"column:package_id;type:uuid;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
