package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playpasshq/playpass-backend/api/middleware"
	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/api/validators"
	"github.com/playpasshq/playpass-backend/internal/shifts"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

type openShiftRequest struct {
	OpenedBy uuid.UUID       `json:"opened_by" validate:"required"`
	CashOpen decimal.Decimal `json:"cash_open"`
}

// OpenShift starts a drawer session on the calling device.
func OpenShift(svc shifts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		var req openShiftRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shift, err := svc.Open(r.Context(), shifts.OpenInput{
			TenantID: device.TenantID,
			StoreID:  device.StoreID,
			DeviceID: device.DeviceID,
			OpenedBy: req.OpenedBy,
			CashOpen: req.CashOpen,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shift)
	}
}

type closeShiftRequest struct {
	ClosedBy    uuid.UUID       `json:"closed_by" validate:"required"`
	CashCounted decimal.Decimal `json:"cash_counted"`
}

// CloseShift settles a shift against the counted drawer. Closing an already
// closed shift returns its stored figures unchanged.
func CloseShift(svc shifts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		shiftID, err := uuid.Parse(chi.URLParam(r, "shiftID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shift id"))
			return
		}

		var req closeShiftRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shift, err := svc.Close(r.Context(), shifts.CloseInput{
			TenantID:    device.TenantID,
			ShiftID:     shiftID,
			ClosedBy:    req.ClosedBy,
			CashCounted: req.CashCounted,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shift)
	}
}

// GetShift returns one shift scoped to the caller's tenant.
func GetShift(svc shifts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		shiftID, err := uuid.Parse(chi.URLParam(r, "shiftID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shift id"))
			return
		}

		shift, err := svc.GetShift(r.Context(), device.TenantID, shiftID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shift)
	}
}

// CurrentShift returns the device's open shift, if one exists.
func CurrentShift(svc shifts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		shift, err := svc.GetOpenShift(r.Context(), device.DeviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shift)
	}
}
