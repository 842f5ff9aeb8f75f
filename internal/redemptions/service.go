package redemptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/metrics"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

// errQuotaRace aborts the pass transaction when the guarded increment finds
// the quota already consumed by a concurrent scan.
var errQuotaRace = errors.New("quota consumed concurrently")

// ticketSource is the slice of the ticket repository the validator reads.
type ticketSource interface {
	GetByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error)
}

// packageSource resolves the package rules a timepass decrement depends on.
type packageSource interface {
	GetPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error)
}

// Service decides pass or fail for redemption attempts and records every
// attempt, successful or not, as an immutable audit row.
type Service interface {
	Redeem(ctx context.Context, input RedeemInput) (*Decision, error)
	History(ctx context.Context, tenantID, ticketID uuid.UUID, limit int) ([]models.Redemption, error)
}

// RedeemInput is one scan at a gate or point-of-sale device.
type RedeemInput struct {
	TenantID uuid.UUID `json:"tenant_id"`
	StoreID  uuid.UUID `json:"store_id"`
	DeviceID uuid.UUID `json:"device_id"`
	QRToken  string    `json:"qr_token"`
	At       time.Time `json:"at"`
	// EventID is set when the attempt is replayed through sync; replays with
	// a known event id return the stored decision without side effects.
	EventID *uuid.UUID `json:"event_id"`
}

// Decision is the outcome of one redemption attempt.
type Decision struct {
	RedemptionID uuid.UUID               `json:"redemption_id"`
	TicketID     *uuid.UUID              `json:"ticket_id"`
	Result       enums.RedemptionResult  `json:"result"`
	Reason       *enums.RedemptionReason `json:"reason,omitempty"`
	Remaining    int                     `json:"remaining"`
	AttemptedAt  time.Time               `json:"attempted_at"`
	// Replayed marks a decision served from the audit log instead of being
	// evaluated again.
	Replayed bool `json:"replayed"`
}

type service struct {
	client   *dbpkg.Client
	repo     Repository
	tickets  ticketSource
	packages packageSource
	signer   *security.Signer
	events   *outbox.Service
	gate     *metrics.GateMetrics
	logg     *logger.Logger
}

// NewService wires the redemption validator.
func NewService(
	client *dbpkg.Client,
	repo Repository,
	tickets ticketSource,
	packages packageSource,
	signer *security.Signer,
	events *outbox.Service,
	gate *metrics.GateMetrics,
	logg *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redemption repository required")
	}
	if tickets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ticket source required")
	}
	if packages == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "package source required")
	}
	if signer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ticket signer required")
	}
	return &service{
		client:   client,
		repo:     repo,
		tickets:  tickets,
		packages: packages,
		signer:   signer,
		events:   events,
		gate:     gate,
		logg:     logg,
	}, nil
}

func (s *service) Redeem(ctx context.Context, input RedeemInput) (*Decision, error) {
	if input.TenantID == uuid.Nil || input.DeviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and device id are required")
	}
	if input.QRToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qr token is required")
	}
	if input.At.IsZero() {
		input.At = time.Now()
	}

	// sync replays with a known event id return the stored outcome
	if input.EventID != nil {
		stored, err := s.repo.FindByEventID(ctx, *input.EventID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking replay")
		}
		if stored != nil {
			decision := decisionFromRow(stored)
			decision.Replayed = true
			return decision, nil
		}
	}

	ticket, err := s.tickets.GetByQRToken(ctx, input.QRToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up ticket")
	}
	// an unknown token and a cross-tenant token fail the same way so a
	// scanning device cannot probe for ticket existence
	if ticket == nil || ticket.TenantID != input.TenantID {
		return s.fail(ctx, input, nil, enums.RedemptionReasonInvalidSignature, 0)
	}

	if !s.signer.Verify(security.TicketClaims{
		TicketID:  ticket.ID,
		QRToken:   ticket.QRToken,
		ValidFrom: ticket.ValidFrom,
		ValidTo:   ticket.ValidTo,
	}, ticket.KeyVersion, ticket.Signature) {
		return s.fail(ctx, input, ticket, enums.RedemptionReasonInvalidSignature, ticket.Remaining())
	}

	switch ticket.Status {
	case enums.TicketStatusCancelled:
		return s.fail(ctx, input, ticket, enums.RedemptionReasonCancelled, ticket.Remaining())
	case enums.TicketStatusRefunded:
		return s.fail(ctx, input, ticket, enums.RedemptionReasonRefunded, ticket.Remaining())
	case enums.TicketStatusExpired:
		return s.fail(ctx, input, ticket, enums.RedemptionReasonExpired, ticket.Remaining())
	}

	if bound := ticket.BoundDevices(); len(bound) > 0 && !containsDevice(bound, input.DeviceID) {
		return s.fail(ctx, input, ticket, enums.RedemptionReasonWrongDevice, ticket.Remaining())
	}

	if input.At.Before(ticket.ValidFrom) {
		return s.fail(ctx, input, ticket, enums.RedemptionReasonNotStarted, ticket.Remaining())
	}
	if input.At.After(ticket.ValidTo) {
		return s.fail(ctx, input, ticket, enums.RedemptionReasonExpired, ticket.Remaining())
	}

	if ticket.Remaining() <= 0 {
		return s.fail(ctx, input, ticket, exhaustionReason(ticket), 0)
	}

	amount, err := s.decrementAmount(ctx, input, ticket)
	if err != nil {
		return nil, err
	}

	return s.pass(ctx, input, ticket, amount)
}

// decrementAmount works out how much of the entitlement this scan burns.
// Uses-based tickets burn one use. Timepass tickets follow the package
// policy: a fixed number of minutes per scan, or elapsed minutes since the
// paired entry scan.
func (s *service) decrementAmount(ctx context.Context, input RedeemInput, ticket *models.Ticket) (int, error) {
	if ticket.Type != enums.TicketTypeTimepass {
		return 1, nil
	}

	pkg, err := s.packages.GetPackage(ctx, ticket.TenantID, ticket.PackageID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving timepass policy")
	}

	switch pkg.TimepassPolicy {
	case enums.TimepassPolicyEntryExit:
		passes, err := s.repo.CountPasses(ctx, ticket.ID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting entry scans")
		}
		if passes%2 == 0 {
			// entry scan: minutes are burned on the paired exit
			return 0, nil
		}
		lastPass, err := s.repo.LastPassAt(ctx, ticket.ID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving entry scan")
		}
		elapsed := 1
		if lastPass != nil {
			if minutes := int(input.At.Sub(*lastPass).Minutes()); minutes > elapsed {
				elapsed = minutes
			}
		}
		if remaining := ticket.Remaining(); elapsed > remaining {
			elapsed = remaining
		}
		return elapsed, nil
	default:
		minutes := pkg.TimepassScanMinutes
		if minutes <= 0 {
			minutes = 1
		}
		if remaining := ticket.Remaining(); minutes > remaining {
			minutes = remaining
		}
		return minutes, nil
	}
}

func (s *service) pass(ctx context.Context, input RedeemInput, ticket *models.Ticket, amount int) (*Decision, error) {
	attempt := s.newAttempt(input, ticket, enums.RedemptionResultPass, nil, 0)

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		ok, err := txRepo.ConsumeQuota(ctx, ticket.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			// lost the per-ticket race: a concurrent scan consumed the
			// remaining quota between our read and the guarded update
			return errQuotaRace
		}
		attempt.Remaining = ticket.QuotaOrMinutes - ticket.Used - amount
		if attempt.Remaining < 0 {
			attempt.Remaining = 0
		}
		if err := txRepo.Insert(ctx, attempt); err != nil {
			return err
		}
		return s.emit(ctx, tx, input, attempt)
	})
	if errors.Is(err, errQuotaRace) {
		return s.fail(ctx, input, ticket, exhaustionReason(ticket), 0)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording redemption")
	}

	if s.gate != nil {
		s.gate.ObserveRedemption(enums.RedemptionResultPass, nil)
	}
	if s.logg != nil {
		fields := map[string]any{"remaining": attempt.Remaining, "amount": amount}
		s.logg.Info(s.logg.WithTicketID(s.logg.WithFields(ctx, fields), ticket.ID.String()), "redemption pass")
	}
	return decisionFromRow(attempt), nil
}

func (s *service) fail(ctx context.Context, input RedeemInput, ticket *models.Ticket, reason enums.RedemptionReason, remaining int) (*Decision, error) {
	attempt := s.newAttempt(input, ticket, enums.RedemptionResultFail, &reason, remaining)

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, attempt); err != nil {
			return err
		}
		return s.emit(ctx, tx, input, attempt)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording redemption")
	}

	if s.gate != nil {
		s.gate.ObserveRedemption(enums.RedemptionResultFail, &reason)
	}
	if s.logg != nil {
		fields := map[string]any{"reason": string(reason), "device_id": input.DeviceID.String()}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "redemption fail")
	}
	return decisionFromRow(attempt), nil
}

func (s *service) newAttempt(input RedeemInput, ticket *models.Ticket, result enums.RedemptionResult, reason *enums.RedemptionReason, remaining int) *models.Redemption {
	attempt := &models.Redemption{
		ID:          uuid.New(),
		TenantID:    input.TenantID,
		StoreID:     input.StoreID,
		DeviceID:    input.DeviceID,
		Result:      result,
		Reason:      reason,
		Remaining:   remaining,
		EventID:     input.EventID,
		AttemptedAt: input.At,
	}
	if ticket != nil {
		ticketID := ticket.ID
		attempt.TicketID = &ticketID
	}
	return attempt
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, input RedeemInput, attempt *models.Redemption) error {
	if s.events == nil {
		return nil
	}
	payload := map[string]any{
		"redemption_id": attempt.ID.String(),
		"device_id":     input.DeviceID.String(),
		"result":        string(attempt.Result),
		"remaining":     attempt.Remaining,
		"attempted_at":  attempt.AttemptedAt.UTC().Format(time.RFC3339),
	}
	if attempt.TicketID != nil {
		payload["ticket_id"] = attempt.TicketID.String()
	}
	if attempt.Reason != nil {
		payload["reason"] = string(*attempt.Reason)
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventRedemptionRecorded,
		AggregateType: enums.AggregateRedemption,
		AggregateID:   attempt.ID,
		Data:          payload,
		Version:       1,
		OccurredAt:    attempt.AttemptedAt,
	}
	if err := s.events.Emit(ctx, tx, event); err != nil {
		return err
	}

	if attempt.Reason != nil && attempt.Reason.IsFraudSignal() {
		flagged := event
		flagged.EventType = enums.EventRedemptionFlagged
		return s.events.Emit(ctx, tx, flagged)
	}
	return nil
}

func (s *service) History(ctx context.Context, tenantID, ticketID uuid.UUID, limit int) ([]models.Redemption, error) {
	if tenantID == uuid.Nil || ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and ticket id are required")
	}
	attempts, err := s.repo.ListByTicket(ctx, tenantID, ticketID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing redemptions")
	}
	return attempts, nil
}

// exhaustionReason distinguishes a re-scanned single-use ticket from a
// genuinely drained multi-use or timepass entitlement.
func exhaustionReason(ticket *models.Ticket) enums.RedemptionReason {
	if ticket.Type == enums.TicketTypeSingle {
		return enums.RedemptionReasonDuplicateUse
	}
	return enums.RedemptionReasonExhausted
}

func containsDevice(bound []uuid.UUID, deviceID uuid.UUID) bool {
	for _, id := range bound {
		if id == deviceID {
			return true
		}
	}
	return false
}

func decisionFromRow(attempt *models.Redemption) *Decision {
	return &Decision{
		RedemptionID: attempt.ID,
		TicketID:     attempt.TicketID,
		Result:       attempt.Result,
		Reason:       attempt.Reason,
		Remaining:    attempt.Remaining,
		AttemptedAt:  attempt.AttemptedAt,
	}
}
