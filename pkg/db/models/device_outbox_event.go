package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// DeviceOutboxEvent is a locally-queued operation on a device awaiting
// transmission to the server. It lives in the device's SQLite store, never
// in the server database. Seq preserves per-device enqueue order on the wire.
type DeviceOutboxEvent struct {
	Seq             int64                   `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID         uuid.UUID               `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_device_outbox_event_id"`
	OperationType   enums.SyncOperationType `gorm:"column:operation_type;not null"`
	Payload         json.RawMessage         `gorm:"column:payload;not null"`
	Status          enums.SyncEventStatus   `gorm:"column:status;not null;default:'pending';index"`
	SyncAttempts    int                     `gorm:"column:sync_attempts;not null;default:0"`
	LastSyncAttempt *time.Time              `gorm:"column:last_sync_attempt"`
	SyncedAt        *time.Time              `gorm:"column:synced_at"`
	ErrorMessage    *string                 `gorm:"column:error_message"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
}
