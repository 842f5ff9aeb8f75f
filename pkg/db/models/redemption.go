package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Redemption is the immutable audit record for one redemption attempt,
// pass or fail. Rows are never updated after insert.
type Redemption struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TenantID  uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null;index"`
	StoreID   uuid.UUID               `gorm:"column:store_id;type:uuid;not null"`
	TicketID  *uuid.UUID              `gorm:"column:ticket_id;type:uuid;index"`
	DeviceID  uuid.UUID               `gorm:"column:device_id;type:uuid;not null;index"`
	Result    enums.RedemptionResult  `gorm:"column:result;type:redemption_result_enum;not null"`
	Reason    *enums.RedemptionReason `gorm:"column:reason;type:redemption_reason_enum"`
	Remaining int                     `gorm:"column:remaining;not null;default:0"`
	// EventID references the device outbox event when the attempt was
	// replayed through sync; nil for attempts made directly online.
	EventID     *uuid.UUID `gorm:"column:event_id;type:uuid;uniqueIndex:ux_redemptions_event_id"`
	AttemptedAt time.Time  `gorm:"column:attempted_at;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
