package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeviceRef identifies the device and operator that produced the event.
type DeviceRef struct {
	DeviceID uuid.UUID  `json:"deviceId"`
	TenantID uuid.UUID  `json:"tenantId"`
	StoreID  *uuid.UUID `json:"storeId,omitempty"`
	Operator string     `json:"operator,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     *DeviceRef      `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}
