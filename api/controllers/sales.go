package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playpasshq/playpass-backend/api/middleware"
	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/api/validators"
	"github.com/playpasshq/playpass-backend/internal/sales"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

type saleLineRequest struct {
	PackageID uuid.UUID       `json:"package_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type recordSaleRequest struct {
	SaleID     uuid.UUID         `json:"sale_id"`
	ShiftID    *uuid.UUID        `json:"shift_id"`
	Kind       string            `json:"kind" validate:"required,oneof=sale refund"`
	Lines      []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
	OccurredAt *time.Time        `json:"occurred_at"`
}

// RecordSale persists a finished transaction from the calling device. The
// optional client-supplied sale id makes retries idempotent.
func RecordSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		var req recordSaleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := enums.ParseSaleKind(req.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sale kind"))
			return
		}

		input := sales.RecordSaleInput{
			SaleID:   req.SaleID,
			TenantID: device.TenantID,
			StoreID:  device.StoreID,
			DeviceID: device.DeviceID,
			ShiftID:  req.ShiftID,
			Kind:     kind,
		}
		if req.OccurredAt != nil {
			input.OccurredAt = *req.OccurredAt
		}
		for _, line := range req.Lines {
			input.Lines = append(input.Lines, sales.LineInput{
				PackageID: line.PackageID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}

		sale, err := svc.RecordSale(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sale)
	}
}
