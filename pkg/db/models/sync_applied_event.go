package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// SyncAppliedEvent records the authoritative outcome of a device outbox
// event after the server applied it. The primary key on event_id is the
// durable at-most-once guard: replays hit this row and get the stored
// outcome back without re-executing side effects.
type SyncAppliedEvent struct {
	EventID       uuid.UUID               `gorm:"column:event_id;type:uuid;primaryKey"`
	TenantID      uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null;index"`
	DeviceID      uuid.UUID               `gorm:"column:device_id;type:uuid;not null;index"`
	OperationType enums.SyncOperationType `gorm:"column:operation_type;type:sync_operation_type_enum;not null"`
	Outcome       json.RawMessage         `gorm:"column:outcome;type:jsonb;not null"`
	AppliedAt     time.Time               `gorm:"column:applied_at;autoCreateTime"`
}
