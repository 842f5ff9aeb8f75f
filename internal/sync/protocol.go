package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Event is one device outbox entry on the wire.
type Event struct {
	EventID       uuid.UUID               `json:"event_id"`
	OperationType enums.SyncOperationType `json:"operation_type"`
	Payload       json.RawMessage         `json:"payload"`
	OccurredAt    time.Time               `json:"occurred_at"`
	// LocalDecision is the provisional outcome the device produced while
	// offline, when the operation has one (redemptions). The server echoes
	// it back next to its own decision so the device can reconcile.
	LocalDecision *string `json:"local_decision,omitempty"`
}

// BatchRequest carries a device's pending events in enqueue order.
type BatchRequest struct {
	Events []Event `json:"events"`
}

// AckStatus classifies the server's handling of one event.
type AckStatus string

const (
	// AckApplied means the operation executed and its outcome is recorded.
	AckApplied AckStatus = "applied"
	// AckDuplicate means the event id was seen before; the recorded outcome
	// is returned without side effects.
	AckDuplicate AckStatus = "duplicate"
	// AckRejected means the operation failed a business rule. Definitive:
	// the device must stop retrying and surface the error.
	AckRejected AckStatus = "rejected"
	// AckTransient means the server could not process the event this time.
	// The device keeps the event pending and retries.
	AckTransient AckStatus = "transient"
)

// EventAck is the server's per-event verdict.
type EventAck struct {
	EventID        uuid.UUID       `json:"event_id"`
	Status         AckStatus       `json:"status"`
	Outcome        json.RawMessage `json:"outcome,omitempty"`
	LocalDecision  *string         `json:"local_decision,omitempty"`
	ServerDecision *string         `json:"server_decision,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Downgraded reports whether the authoritative decision contradicts the
// device's provisional one, e.g. an offline pass the server turned into a
// fail because another device drained the quota first.
func (a EventAck) Downgraded() bool {
	return a.LocalDecision != nil && a.ServerDecision != nil && *a.LocalDecision != *a.ServerDecision
}

// BatchResponse acknowledges a batch in request order.
type BatchResponse struct {
	Acks []EventAck `json:"acks"`
}

// StatusReport summarizes a device's outbox backlog.
type StatusReport struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}
