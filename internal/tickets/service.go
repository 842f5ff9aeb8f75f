package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/internal/catalog"
	"github.com/playpasshq/playpass-backend/internal/sales"
	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
	"github.com/playpasshq/playpass-backend/pkg/qr"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

const (
	// whole-batch retries when a freshly generated code loses a uniqueness
	// race at insert time
	maxIssueAttempts = 3
	// per-attempt regenerations when the preflight check finds a taken code
	maxCodeRegens = 5
)

// Service mints, looks up and voids tickets.
type Service interface {
	IssueForSale(ctx context.Context, input IssueInput) ([]models.Ticket, error)
	Cancel(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error)
	Refund(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error)
	GetTicket(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error)
	FindByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error)
	FindByShortCode(ctx context.Context, tenantID uuid.UUID, shortCode string) (*models.Ticket, error)
	QRPayload(ticket *models.Ticket) (string, error)
}

// IssueInput mints the tickets for a completed sale.
type IssueInput struct {
	TenantID uuid.UUID `json:"tenant_id"`
	StoreID  uuid.UUID `json:"store_id"`
	SaleID   uuid.UUID `json:"sale_id"`
}

type service struct {
	client  *dbpkg.Client
	repo    Repository
	catalog catalog.Service
	sales   sales.Service
	signer  *security.Signer
	events  *outbox.Service
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires a ticket service.
func NewService(
	client *dbpkg.Client,
	repo Repository,
	catalogSvc catalog.Service,
	saleSvc sales.Service,
	signer *security.Signer,
	events *outbox.Service,
	logg *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ticket repository required")
	}
	if catalogSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog service required")
	}
	if saleSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sales service required")
	}
	if signer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ticket signer required")
	}
	return &service{
		client:  client,
		repo:    repo,
		catalog: catalogSvc,
		sales:   saleSvc,
		signer:  signer,
		events:  events,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) IssueForSale(ctx context.Context, input IssueInput) ([]models.Ticket, error) {
	if input.TenantID == uuid.Nil || input.StoreID == uuid.Nil || input.SaleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, store and sale ids are required")
	}

	sale, err := s.sales.GetSale(ctx, input.TenantID, input.SaleID)
	if err != nil {
		return nil, err
	}
	if sale.Kind != enums.SaleKindSale {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "tickets can only be issued for sales")
	}

	// issuance is idempotent by sale: a replayed request is a reprint
	existing, err := s.repo.ListBySale(ctx, input.TenantID, input.SaleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking issued tickets")
	}
	if len(existing) > 0 {
		return existing, nil
	}

	blueprints, err := s.blueprintsForSale(ctx, input, sale)
	if err != nil {
		return nil, err
	}
	if len(blueprints) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale has no ticketable line items")
	}

	lotNo, err := newLotNo(s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating lot number")
	}

	var lastErr error
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		batch, err := s.mintBatch(ctx, input, blueprints, lotNo)
		if err != nil {
			return nil, err
		}

		err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).CreateBatch(ctx, batch); err != nil {
				return err
			}
			return s.emitIssued(ctx, tx, input, batch, lotNo)
		})
		if err == nil {
			out := make([]models.Ticket, len(batch))
			for i, ticket := range batch {
				out[i] = *ticket
			}
			if s.logg != nil {
				fields := map[string]any{"sale_id": input.SaleID.String(), "lot_no": lotNo, "count": len(out)}
				s.logg.Info(s.logg.WithFields(ctx, fields), "tickets issued")
			}
			return out, nil
		}
		// a code that passed preflight can still collide at commit time;
		// the whole batch rolls back and is re-minted with fresh codes
		if dbpkg.IsUniqueViolation(err, "ux_tickets_short_code") || dbpkg.IsUniqueViolation(err, "ux_tickets_qr_token") {
			lastErr = err
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issuing tickets")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "issuing tickets: code collisions exhausted retries")
}

// blueprint carries everything needed to mint one ticket except its codes.
type blueprint struct {
	packageID      uuid.UUID
	ticketType     enums.TicketType
	quotaOrMinutes int
	validFrom      time.Time
	validTo        time.Time
	deviceBinding  json.RawMessage
}

func (s *service) blueprintsForSale(ctx context.Context, input IssueInput, sale *models.Sale) ([]blueprint, error) {
	var (
		blueprints []blueprint
		errs       error
	)
	for _, line := range sale.LineItems {
		pkg, err := s.catalog.GetPackage(ctx, input.TenantID, line.PackageID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %s: %w", line.ID, err))
			continue
		}
		validFrom, validTo := s.catalog.ValidityWindow(pkg, sale.OccurredAt)
		for i := 0; i < line.Quantity; i++ {
			blueprints = append(blueprints, blueprint{
				packageID:      pkg.ID,
				ticketType:     pkg.Type,
				quotaOrMinutes: pkg.QuotaOrMinutes,
				validFrom:      validFrom,
				validTo:        validTo,
				deviceBinding:  pkg.DeviceBinding,
			})
		}
	}
	if errs != nil {
		// all-or-nothing: any unresolvable line voids the whole batch
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errs, "resolving sale line items")
	}
	return blueprints, nil
}

func (s *service) mintBatch(ctx context.Context, input IssueInput, blueprints []blueprint, lotNo string) ([]*models.Ticket, error) {
	codes, err := s.reserveShortCodes(ctx, len(blueprints))
	if err != nil {
		return nil, err
	}

	batch := make([]*models.Ticket, len(blueprints))
	for i, bp := range blueprints {
		ticketID := uuid.New()
		qrToken, err := newQRToken()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating qr token")
		}
		signature, keyVersion, err := s.signer.Sign(security.TicketClaims{
			TicketID:  ticketID,
			QRToken:   qrToken,
			ValidFrom: bp.validFrom,
			ValidTo:   bp.validTo,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "signing ticket")
		}
		batch[i] = &models.Ticket{
			ID:             ticketID,
			TenantID:       input.TenantID,
			StoreID:        input.StoreID,
			SaleID:         input.SaleID,
			ShortCode:      codes[i],
			QRToken:        qrToken,
			Type:           bp.ticketType,
			QuotaOrMinutes: bp.quotaOrMinutes,
			ValidFrom:      bp.validFrom,
			ValidTo:        bp.validTo,
			Status:         enums.TicketStatusActive,
			DeviceBinding:  bp.deviceBinding,
			PackageID:      bp.packageID,
			LotNo:          lotNo,
			Signature:      signature,
			KeyVersion:     keyVersion,
		}
	}
	return batch, nil
}

// reserveShortCodes generates distinct codes and regenerates any that the
// preflight lookup finds taken.
func (s *service) reserveShortCodes(ctx context.Context, count int) ([]string, error) {
	codes := make([]string, count)
	inBatch := make(map[string]struct{}, count)
	for i := range codes {
		code, err := s.freshCode(inBatch)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}

	for regen := 0; regen < maxCodeRegens; regen++ {
		taken, err := s.repo.ExistingShortCodes(ctx, codes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking short codes")
		}
		if len(taken) == 0 {
			return codes, nil
		}
		for i, code := range codes {
			if _, collided := taken[code]; !collided {
				continue
			}
			fresh, err := s.freshCode(inBatch)
			if err != nil {
				return nil, err
			}
			codes[i] = fresh
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "short code space too contended")
}

func (s *service) freshCode(inBatch map[string]struct{}) (string, error) {
	for i := 0; i < maxCodeRegens; i++ {
		code, err := newShortCode()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating short code")
		}
		if _, dup := inBatch[code]; dup {
			continue
		}
		inBatch[code] = struct{}{}
		return code, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "short code generation exhausted")
}

func (s *service) emitIssued(ctx context.Context, tx *gorm.DB, input IssueInput, batch []*models.Ticket, lotNo string) error {
	if s.events == nil {
		return nil
	}
	ids := make([]string, len(batch))
	for i, ticket := range batch {
		ids[i] = ticket.ID.String()
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTicketIssued,
		AggregateType: enums.AggregateSale,
		AggregateID:   input.SaleID,
		Data: map[string]any{
			"sale_id":    input.SaleID.String(),
			"lot_no":     lotNo,
			"ticket_ids": ids,
		},
		Version: 1,
	})
}

func (s *service) Cancel(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error) {
	return s.void(ctx, tenantID, ticketID, enums.TicketStatusCancelled, enums.EventTicketCancelled)
}

func (s *service) Refund(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error) {
	return s.void(ctx, tenantID, ticketID, enums.TicketStatusRefunded, enums.EventTicketRefunded)
}

func (s *service) void(ctx context.Context, tenantID, ticketID uuid.UUID, status enums.TicketStatus, eventType enums.OutboxEventType) (*models.Ticket, error) {
	if tenantID == uuid.Nil || ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and ticket id are required")
	}
	ticket, err := s.repo.GetByID(ctx, tenantID, ticketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ticket")
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	if ticket.Status == status {
		// replaying the same void is a no-op
		return ticket, nil
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, ticketID, status)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("ticket is %s and cannot become %s", ticket.Status, status))
		}
		if s.events == nil {
			return nil
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticketID,
			Data: map[string]any{
				"ticket_id": ticketID.String(),
				"status":    string(status),
			},
			Version: 1,
		})
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "voiding ticket")
	}

	ticket.Status = status
	return ticket, nil
}

func (s *service) GetTicket(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error) {
	if tenantID == uuid.Nil || ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and ticket id are required")
	}
	ticket, err := s.repo.GetByID(ctx, tenantID, ticketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ticket")
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	return ticket, nil
}

func (s *service) FindByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error) {
	if qrToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qr token is required")
	}
	ticket, err := s.repo.GetByQRToken(ctx, qrToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up ticket")
	}
	return ticket, nil
}

func (s *service) FindByShortCode(ctx context.Context, tenantID uuid.UUID, shortCode string) (*models.Ticket, error) {
	if shortCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "short code is required")
	}
	ticket, err := s.repo.GetByShortCode(ctx, tenantID, shortCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up ticket")
	}
	return ticket, nil
}

// QRPayload renders the scannable payload for a printed ticket.
func (s *service) QRPayload(ticket *models.Ticket) (string, error) {
	if ticket == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "ticket is required")
	}
	return qr.Encode(qr.Payload{
		TicketID:   ticket.ID,
		QRToken:    ticket.QRToken,
		ShortCode:  ticket.ShortCode,
		Type:       ticket.Type,
		ValidFrom:  ticket.ValidFrom.Unix(),
		ValidTo:    ticket.ValidTo.Unix(),
		KeyVersion: ticket.KeyVersion,
		Signature:  ticket.Signature,
	})
}
