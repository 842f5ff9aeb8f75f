package enums

import "fmt"

// SyncOperationType identifies the device-originated operation carried by a
// device outbox event.
type SyncOperationType string

const (
	SyncOperationSale       SyncOperationType = "sale"
	SyncOperationRedemption SyncOperationType = "redemption"
	SyncOperationShiftOpen  SyncOperationType = "shift_open"
	SyncOperationShiftClose SyncOperationType = "shift_close"
	SyncOperationAudit      SyncOperationType = "audit"
)

var validSyncOperationTypes = []SyncOperationType{
	SyncOperationSale,
	SyncOperationRedemption,
	SyncOperationShiftOpen,
	SyncOperationShiftClose,
	SyncOperationAudit,
}

// IsValid reports whether the value matches the canonical operation_type enum.
func (o SyncOperationType) IsValid() bool {
	for _, candidate := range validSyncOperationTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseSyncOperationType converts raw input into SyncOperationType.
func ParseSyncOperationType(value string) (SyncOperationType, error) {
	for _, candidate := range validSyncOperationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync operation type %q", value)
}

// SyncEventStatus tracks a device outbox event through its bounded-retry
// state machine.
type SyncEventStatus string

const (
	SyncEventStatusPending SyncEventStatus = "pending"
	SyncEventStatusSynced  SyncEventStatus = "synced"
	SyncEventStatusFailed  SyncEventStatus = "failed"
)

var validSyncEventStatuses = []SyncEventStatus{
	SyncEventStatusPending,
	SyncEventStatusSynced,
	SyncEventStatusFailed,
}

// IsValid reports whether the value matches the canonical sync_event_status enum.
func (s SyncEventStatus) IsValid() bool {
	for _, candidate := range validSyncEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// OutboxAggregateType maps to the aggregate_type enum on the server-side
// domain outbox.
type OutboxAggregateType string

const (
	AggregateTicket     OutboxAggregateType = "ticket"
	AggregateRedemption OutboxAggregateType = "redemption"
	AggregateSale       OutboxAggregateType = "sale"
	AggregateShift      OutboxAggregateType = "shift"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTicket,
	AggregateRedemption,
	AggregateSale,
	AggregateShift,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type enum on the server-side domain outbox.
type OutboxEventType string

const (
	EventTicketIssued        OutboxEventType = "ticket_issued"
	EventTicketCancelled     OutboxEventType = "ticket_cancelled"
	EventTicketRefunded      OutboxEventType = "ticket_refunded"
	EventRedemptionRecorded  OutboxEventType = "redemption_recorded"
	EventRedemptionFlagged   OutboxEventType = "redemption_flagged"
	EventSaleRecorded        OutboxEventType = "sale_recorded"
	EventShiftOpened         OutboxEventType = "shift_opened"
	EventShiftClosed         OutboxEventType = "shift_closed"
	EventShiftCashMismatched OutboxEventType = "shift_cash_mismatched"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTicketIssued,
	EventTicketCancelled,
	EventTicketRefunded,
	EventRedemptionRecorded,
	EventRedemptionFlagged,
	EventSaleRecorded,
	EventShiftOpened,
	EventShiftClosed,
	EventShiftCashMismatched,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why a server outbox event was parked.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
