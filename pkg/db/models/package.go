package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Package is the catalog definition a ticket is minted from. Owned by the
// external catalog service; this backend only reads it.
type Package struct {
	ID                     uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TenantID               uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name                   string               `gorm:"column:name;not null"`
	Type                   enums.TicketType     `gorm:"column:type;type:ticket_type_enum;not null"`
	QuotaOrMinutes         int                  `gorm:"column:quota_or_minutes;not null"`
	ValidityMinutes        int                  `gorm:"column:validity_minutes;not null"`
	ActivationDelayMinutes int                  `gorm:"column:activation_delay_minutes;not null;default:0"`
	TimepassPolicy         enums.TimepassPolicy `gorm:"column:timepass_policy;type:timepass_policy_enum;not null;default:'fixed_decrement'"`
	TimepassScanMinutes    int                  `gorm:"column:timepass_scan_minutes;not null;default:0"`
	DeviceBinding          json.RawMessage      `gorm:"column:device_binding;type:jsonb"`
	Price                  decimal.Decimal      `gorm:"column:price;type:numeric(12,2);not null"`
	CreatedAt              time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
