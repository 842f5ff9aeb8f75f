package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/internal/redemptions"
	"github.com/playpasshq/playpass-backend/internal/sales"
	"github.com/playpasshq/playpass-backend/internal/shifts"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/metrics"
	"github.com/playpasshq/playpass-backend/pkg/outbox/idempotency"
)

// idempotencyConsumer namespaces the fast-path replay guard in Redis.
const idempotencyConsumer = "sync-applier"

// DeviceIdentity is the authenticated caller of a sync batch. It comes from
// the device token, never from the payload: a device cannot sync on behalf
// of another tenant or store.
type DeviceIdentity struct {
	DeviceID uuid.UUID
	TenantID uuid.UUID
	StoreID  uuid.UUID
}

// Applier applies device outbox batches on the server, at most once per
// event id.
type Applier interface {
	ApplyBatch(ctx context.Context, identity DeviceIdentity, req BatchRequest) (*BatchResponse, error)
}

type applier struct {
	applied     AppliedRepository
	idem        *idempotency.Manager
	sales       sales.Service
	redemptions redemptions.Service
	shifts      shifts.Service
	gate        *metrics.GateMetrics
	logg        *logger.Logger
	maxBatch    int
}

// NewApplier wires the server side of the sync protocol.
func NewApplier(
	applied AppliedRepository,
	idem *idempotency.Manager,
	saleSvc sales.Service,
	redemptionSvc redemptions.Service,
	shiftSvc shifts.Service,
	gate *metrics.GateMetrics,
	logg *logger.Logger,
	maxBatch int,
) (Applier, error) {
	if applied == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applied repository required")
	}
	if saleSvc == nil || redemptionSvc == nil || shiftSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sale, redemption and shift services required")
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &applier{
		applied:     applied,
		idem:        idem,
		sales:       saleSvc,
		redemptions: redemptionSvc,
		shifts:      shiftSvc,
		gate:        gate,
		logg:        logg,
		maxBatch:    maxBatch,
	}, nil
}

func (a *applier) ApplyBatch(ctx context.Context, identity DeviceIdentity, req BatchRequest) (*BatchResponse, error) {
	if identity.DeviceID == uuid.Nil || identity.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "device identity required")
	}
	if len(req.Events) == 0 {
		return &BatchResponse{Acks: []EventAck{}}, nil
	}
	if len(req.Events) > a.maxBatch {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch exceeds maximum size")
	}

	started := time.Now()
	acks := make([]EventAck, len(req.Events))
	for i, event := range req.Events {
		acks[i] = a.applyOne(ctx, identity, event)
	}

	if a.gate != nil {
		outcome := "ok"
		for _, ack := range acks {
			if ack.Status == AckTransient {
				outcome = "partial"
				break
			}
		}
		a.gate.ObserveSyncBatch(outcome, time.Since(started))
	}
	return &BatchResponse{Acks: acks}, nil
}

func (a *applier) applyOne(ctx context.Context, identity DeviceIdentity, event Event) EventAck {
	ack := EventAck{EventID: event.EventID, LocalDecision: event.LocalDecision}

	if event.EventID == uuid.Nil {
		ack.Status = AckRejected
		ack.Error = "event id is required"
		return ack
	}
	if !event.OperationType.IsValid() {
		ack.Status = AckRejected
		ack.Error = "unknown operation type"
		return ack
	}

	// durable replay check first: the applied table survives restarts and
	// Redis evictions
	if stored, err := a.applied.FindByEventID(ctx, event.EventID); err != nil {
		ack.Status = AckTransient
		ack.Error = "checking applied events"
		return ack
	} else if stored != nil {
		return a.replayAck(event, stored)
	}

	if a.idem != nil {
		already, err := a.idem.CheckAndMarkProcessed(ctx, idempotencyConsumer, event.EventID)
		if err == nil && already {
			// marker without a row means a previous attempt died between
			// the fast path and the durable write; re-check and fall
			// through to apply if the row never landed
			if stored, err := a.applied.FindByEventID(ctx, event.EventID); err == nil && stored != nil {
				return a.replayAck(event, stored)
			}
		}
	}

	outcome, serverDecision, err := a.dispatch(ctx, identity, event)
	if err != nil {
		if definitive(err) {
			ack.Status = AckRejected
			ack.Error = err.Error()
			a.recordOutcome(ctx, identity, event, rejectionOutcome(err))
			return ack
		}
		// transient: release the fast-path marker so a retry re-executes
		if a.idem != nil {
			_ = a.idem.Delete(ctx, idempotencyConsumer, event.EventID)
		}
		ack.Status = AckTransient
		ack.Error = err.Error()
		if a.logg != nil {
			a.logg.Error(a.logg.WithDeviceID(ctx, identity.DeviceID.String()), "sync apply failed", err)
		}
		return ack
	}

	a.recordOutcome(ctx, identity, event, outcome)

	ack.Status = AckApplied
	ack.Outcome = outcome
	ack.ServerDecision = serverDecision
	if ack.Downgraded() && a.logg != nil {
		fields := map[string]any{
			"event_id": event.EventID.String(),
			"local":    *ack.LocalDecision,
			"server":   *ack.ServerDecision,
		}
		a.logg.Warn(a.logg.WithFields(ctx, fields), "provisional decision downgraded")
	}
	return ack
}

// dispatch executes the operation through the same domain services the
// online paths use. Identity fields always come from the device token.
func (a *applier) dispatch(ctx context.Context, identity DeviceIdentity, event Event) (json.RawMessage, *string, error) {
	switch event.OperationType {
	case enums.SyncOperationSale:
		var input sales.RecordSaleInput
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding sale payload")
		}
		input.TenantID = identity.TenantID
		input.StoreID = identity.StoreID
		input.DeviceID = identity.DeviceID
		if input.OccurredAt.IsZero() {
			input.OccurredAt = event.OccurredAt
		}
		sale, err := a.sales.RecordSale(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		outcome, err := json.Marshal(map[string]any{
			"sale_id": sale.ID.String(),
			"amount":  sale.Amount.String(),
		})
		return outcome, nil, err

	case enums.SyncOperationRedemption:
		var payload struct {
			QRToken string    `json:"qr_token"`
			At      time.Time `json:"at"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding redemption payload")
		}
		at := payload.At
		if at.IsZero() {
			at = event.OccurredAt
		}
		eventID := event.EventID
		decision, err := a.redemptions.Redeem(ctx, redemptions.RedeemInput{
			TenantID: identity.TenantID,
			StoreID:  identity.StoreID,
			DeviceID: identity.DeviceID,
			QRToken:  payload.QRToken,
			At:       at,
			EventID:  &eventID,
		})
		if err != nil {
			return nil, nil, err
		}
		serverDecision := string(decision.Result)
		outcome, err := json.Marshal(decision)
		return outcome, &serverDecision, err

	case enums.SyncOperationShiftOpen:
		var input shifts.OpenInput
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding shift payload")
		}
		input.TenantID = identity.TenantID
		input.StoreID = identity.StoreID
		input.DeviceID = identity.DeviceID
		shift, err := a.shifts.Open(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		outcome, err := json.Marshal(map[string]any{
			"shift_id": shift.ID.String(),
			"status":   string(shift.Status),
		})
		return outcome, nil, err

	case enums.SyncOperationShiftClose:
		var input shifts.CloseInput
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding shift payload")
		}
		input.TenantID = identity.TenantID
		shift, err := a.shifts.Close(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		fields := map[string]any{
			"shift_id": shift.ID.String(),
			"status":   string(shift.Status),
		}
		if shift.CashDiff != nil {
			fields["cash_diff"] = shift.CashDiff.String()
		}
		outcome, err := json.Marshal(fields)
		return outcome, nil, err

	case enums.SyncOperationAudit:
		// audit events are record-only: the payload lands in the applied
		// table for later inspection
		outcome, err := json.Marshal(map[string]any{"accepted": true})
		return outcome, nil, err
	}
	return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown operation type")
}

// recordOutcome persists the authoritative verdict. A unique violation means
// a concurrent delivery of the same event won the race; its row is the truth
// and ours is discarded.
func (a *applier) recordOutcome(ctx context.Context, identity DeviceIdentity, event Event, outcome json.RawMessage) {
	err := a.applied.Insert(ctx, &models.SyncAppliedEvent{
		EventID:       event.EventID,
		TenantID:      identity.TenantID,
		DeviceID:      identity.DeviceID,
		OperationType: event.OperationType,
		Outcome:       outcome,
	})
	if err != nil && a.logg != nil {
		a.logg.Error(a.logg.WithDeviceID(ctx, identity.DeviceID.String()), "recording sync outcome", err)
	}
}

func (a *applier) replayAck(event Event, stored *models.SyncAppliedEvent) EventAck {
	ack := EventAck{
		EventID:       event.EventID,
		Status:        AckDuplicate,
		Outcome:       stored.Outcome,
		LocalDecision: event.LocalDecision,
	}
	if stored.OperationType == enums.SyncOperationRedemption {
		var decision redemptions.Decision
		if err := json.Unmarshal(stored.Outcome, &decision); err == nil && decision.Result != "" {
			serverDecision := string(decision.Result)
			ack.ServerDecision = &serverDecision
		}
	}
	return ack
}

// definitive reports whether the error is a business-rule rejection the
// device must not retry.
func definitive(err error) bool {
	appErr := pkgerrors.As(err)
	if appErr == nil {
		return false
	}
	switch appErr.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict, pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return true
	}
	return false
}

func rejectionOutcome(err error) json.RawMessage {
	outcome, marshalErr := json.Marshal(map[string]any{
		"rejected": true,
		"error":    err.Error(),
	})
	if marshalErr != nil {
		return json.RawMessage(`{"rejected":true}`)
	}
	return outcome
}
