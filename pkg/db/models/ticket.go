package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Ticket is one purchased entitlement. Mutated only by the redemption path
// (used counter) and the refund/cancel flows (status); never deleted.
type Ticket struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TenantID       uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null;index"`
	StoreID        uuid.UUID          `gorm:"column:store_id;type:uuid;not null;index"`
	SaleID         uuid.UUID          `gorm:"column:sale_id;type:uuid;not null;index"`
	PackageID      uuid.UUID          `gorm:"column:package_id;type:uuid;not null"`
	ShortCode      string             `gorm:"column:short_code;not null;uniqueIndex:ux_tickets_short_code"`
	QRToken        string             `gorm:"column:qr_token;not null;uniqueIndex:ux_tickets_qr_token"`
	Type           enums.TicketType   `gorm:"column:type;type:ticket_type_enum;not null"`
	QuotaOrMinutes int                `gorm:"column:quota_or_minutes;not null"`
	Used           int                `gorm:"column:used;not null;default:0"`
	ValidFrom      time.Time          `gorm:"column:valid_from;not null"`
	ValidTo        time.Time          `gorm:"column:valid_to;not null"`
	Status         enums.TicketStatus `gorm:"column:status;type:ticket_status_enum;not null;default:'active'"`
	DeviceBinding  json.RawMessage    `gorm:"column:device_binding;type:jsonb"`
	LotNo          string             `gorm:"column:lot_no;not null;index"`
	Signature      string             `gorm:"column:signature;not null"`
	KeyVersion     string             `gorm:"column:key_version;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// BoundDevices decodes the optional device binding set. An empty result means
// the ticket is redeemable at any device.
func (t Ticket) BoundDevices() []uuid.UUID {
	if len(t.DeviceBinding) == 0 {
		return nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(t.DeviceBinding, &ids); err != nil {
		return nil
	}
	return ids
}

// Remaining returns the unused quota or minutes at the ticket's current state.
func (t Ticket) Remaining() int {
	remaining := t.QuotaOrMinutes - t.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}
