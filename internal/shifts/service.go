package shifts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
)

// Service manages the cash-drawer shift lifecycle.
type Service interface {
	Open(ctx context.Context, input OpenInput) (*models.Shift, error)
	Close(ctx context.Context, input CloseInput) (*models.Shift, error)
	RecordTransaction(ctx context.Context, tx *gorm.DB, shiftID uuid.UUID, kind enums.SaleKind, amount decimal.Decimal) error
	GetShift(ctx context.Context, tenantID, shiftID uuid.UUID) (*models.Shift, error)
	GetOpenShift(ctx context.Context, deviceID uuid.UUID) (*models.Shift, error)
}

// OpenInput starts a new shift on a device.
type OpenInput struct {
	TenantID uuid.UUID       `json:"tenant_id"`
	StoreID  uuid.UUID       `json:"store_id"`
	DeviceID uuid.UUID       `json:"device_id"`
	OpenedBy uuid.UUID       `json:"opened_by"`
	CashOpen decimal.Decimal `json:"cash_open"`
}

// CloseInput settles an open shift against the counted drawer.
type CloseInput struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	ShiftID     uuid.UUID       `json:"shift_id"`
	ClosedBy    uuid.UUID       `json:"closed_by"`
	CashCounted decimal.Decimal `json:"cash_counted"`
}

type service struct {
	client *dbpkg.Client
	repo   Repository
	events *outbox.Service
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires a shift service.
func NewService(client *dbpkg.Client, repo Repository, events *outbox.Service, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shift repository required")
	}
	return &service{
		client: client,
		repo:   repo,
		events: events,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (*models.Shift, error) {
	if input.TenantID == uuid.Nil || input.StoreID == uuid.Nil || input.DeviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, store and device ids are required")
	}
	if input.OpenedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opened_by is required")
	}
	if input.CashOpen.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash_open cannot be negative")
	}

	existing, err := s.repo.GetOpenByDevice(ctx, input.DeviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking open shift")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "device already has an open shift").
			WithDetails(map[string]string{"shift_id": existing.ID.String()})
	}

	shift := &models.Shift{
		ID:       uuid.New(),
		TenantID: input.TenantID,
		StoreID:  input.StoreID,
		DeviceID: input.DeviceID,
		Status:   enums.ShiftStatusOpen,
		OpenedBy: input.OpenedBy,
		OpenAt:   s.now(),
		CashOpen: input.CashOpen,
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, shift); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventShiftOpened, shift, nil)
	})
	if err != nil {
		// partial unique index backs the check above under races
		if dbpkg.IsUniqueViolation(err, "ux_shifts_device_open") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "device already has an open shift")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "opening shift")
	}
	return shift, nil
}

func (s *service) Close(ctx context.Context, input CloseInput) (*models.Shift, error) {
	if input.TenantID == uuid.Nil || input.ShiftID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and shift id are required")
	}
	if input.ClosedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "closed_by is required")
	}
	if input.CashCounted.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash_counted cannot be negative")
	}

	shift, err := s.repo.GetByID(ctx, input.TenantID, input.ShiftID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading shift")
	}
	if shift == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shift not found")
	}
	if shift.Status == enums.ShiftStatusClosed {
		// closing is terminal and idempotent: replays get the stored result
		return shift, nil
	}

	closeAt := s.now()

	var final *models.Shift
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// expected and diff are computed inside the UPDATE from the row's
		// committed totals. A sale that lands between the read above and
		// this statement still settles into the stored figures.
		closed, err := repo.Close(ctx, shift.ID, input.ClosedBy, closeAt, input.CashCounted)
		if err != nil {
			return err
		}
		settled, err := repo.GetByID(ctx, input.TenantID, input.ShiftID)
		if err != nil {
			return err
		}
		if settled == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "shift disappeared during close")
		}
		final = settled
		if !closed {
			// lost the race to another close; the stored figures win
			return nil
		}
		if err := s.emit(ctx, tx, enums.EventShiftClosed, settled, map[string]string{
			"cash_expected": settled.CashExpected.String(),
			"cash_counted":  settled.CashCounted.String(),
			"cash_diff":     settled.CashDiff.String(),
		}); err != nil {
			return err
		}
		if !settled.CashDiff.IsZero() {
			return s.emit(ctx, tx, enums.EventShiftCashMismatched, settled, map[string]string{
				"cash_diff": settled.CashDiff.String(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "closing shift")
	}
	return final, nil
}

// RecordTransaction accumulates a sale or refund amount on the shift. Runs
// inside the caller's transaction so the shift total and the sale row commit
// together.
func (s *service) RecordTransaction(ctx context.Context, tx *gorm.DB, shiftID uuid.UUID, kind enums.SaleKind, amount decimal.Decimal) error {
	if shiftID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shift id is required")
	}
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid sale kind")
	}
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	ok, err := repo.Accumulate(ctx, shiftID, kind, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating shift totals")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "shift is not open")
	}
	return nil
}

func (s *service) GetShift(ctx context.Context, tenantID, shiftID uuid.UUID) (*models.Shift, error) {
	shift, err := s.repo.GetByID(ctx, tenantID, shiftID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading shift")
	}
	if shift == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shift not found")
	}
	return shift, nil
}

func (s *service) GetOpenShift(ctx context.Context, deviceID uuid.UUID) (*models.Shift, error) {
	if deviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}
	shift, err := s.repo.GetOpenByDevice(ctx, deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading open shift")
	}
	return shift, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, shift *models.Shift, data map[string]string) error {
	if s.events == nil {
		return nil
	}
	payload := map[string]any{
		"shift_id":  shift.ID.String(),
		"device_id": shift.DeviceID.String(),
		"store_id":  shift.StoreID.String(),
	}
	for k, v := range data {
		payload[k] = v
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateShift,
		AggregateID:   shift.ID,
		Data:          payload,
		Version:       1,
	})
}
