package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/internal/shifts"
	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
)

// Service records completed sales and refunds.
type Service interface {
	RecordSale(ctx context.Context, input RecordSaleInput) (*models.Sale, error)
	GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error)
}

// LineInput is one package position on a sale.
type LineInput struct {
	PackageID uuid.UUID       `json:"package_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// RecordSaleInput captures a finished transaction handed over by the
// point-of-sale flow.
type RecordSaleInput struct {
	SaleID     uuid.UUID      `json:"sale_id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	StoreID    uuid.UUID      `json:"store_id"`
	DeviceID   uuid.UUID      `json:"device_id"`
	ShiftID    *uuid.UUID     `json:"shift_id"`
	Kind       enums.SaleKind `json:"kind"`
	Lines      []LineInput    `json:"lines"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type service struct {
	client *dbpkg.Client
	repo   Repository
	shifts shifts.Service
	events *outbox.Service
	logg   *logger.Logger
}

// NewService wires a sales service.
func NewService(client *dbpkg.Client, repo Repository, shiftSvc shifts.Service, events *outbox.Service, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sales repository required")
	}
	return &service{
		client: client,
		repo:   repo,
		shifts: shiftSvc,
		events: events,
		logg:   logg,
	}, nil
}

func (s *service) RecordSale(ctx context.Context, input RecordSaleInput) (*models.Sale, error) {
	if input.TenantID == uuid.Nil || input.StoreID == uuid.Nil || input.DeviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, store and device ids are required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sale kind")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}

	amount := decimal.Zero
	lineItems := make([]models.SaleLineItem, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.PackageID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line package id is required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if line.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line unit price cannot be negative")
		}
		amount = amount.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		lineItems = append(lineItems, models.SaleLineItem{
			ID:        uuid.New(),
			PackageID: line.PackageID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	saleID := input.SaleID
	if saleID == uuid.Nil {
		saleID = uuid.New()
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	// idempotent by sale id: the device may replay the same sale via sync
	if existing, err := s.repo.GetByID(ctx, input.TenantID, saleID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking sale")
	} else if existing != nil {
		return existing, nil
	}

	sale := &models.Sale{
		ID:         saleID,
		TenantID:   input.TenantID,
		StoreID:    input.StoreID,
		DeviceID:   input.DeviceID,
		ShiftID:    input.ShiftID,
		Kind:       input.Kind,
		Amount:     amount,
		OccurredAt: occurredAt,
		LineItems:  lineItems,
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, sale); err != nil {
			return err
		}
		if input.ShiftID != nil && s.shifts != nil {
			if err := s.shifts.RecordTransaction(ctx, tx, *input.ShiftID, input.Kind, amount); err != nil {
				return err
			}
		}
		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSaleRecorded,
				AggregateType: enums.AggregateSale,
				AggregateID:   sale.ID,
				Data: map[string]any{
					"sale_id":   sale.ID.String(),
					"device_id": sale.DeviceID.String(),
					"kind":      string(sale.Kind),
					"amount":    sale.Amount.String(),
				},
				Version: 1,
			})
		}
		return nil
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		if dbpkg.IsUniqueViolation(err, "") {
			existing, getErr := s.repo.GetByID(ctx, input.TenantID, saleID)
			if getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording sale")
	}

	if s.logg != nil {
		fields := map[string]any{"sale_id": sale.ID.String(), "amount": amount.String()}
		s.logg.Info(s.logg.WithFields(ctx, fields), "sale recorded")
	}
	return sale, nil
}

func (s *service) GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error) {
	if tenantID == uuid.Nil || saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and sale id are required")
	}
	sale, err := s.repo.GetByID(ctx, tenantID, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading sale")
	}
	if sale == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
	}
	return sale, nil
}
