package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/api/middleware"
	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/api/validators"
	"github.com/playpasshq/playpass-backend/internal/redemptions"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

type redeemRequest struct {
	QRToken string     `json:"qr_token" validate:"required"`
	At      *time.Time `json:"at"`
}

// Redeem decides pass or fail for one scan at the calling device.
func Redeem(svc redemptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		var req redeemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := redemptions.RedeemInput{
			TenantID: device.TenantID,
			StoreID:  device.StoreID,
			DeviceID: device.DeviceID,
			QRToken:  req.QRToken,
		}
		if req.At != nil {
			input.At = *req.At
		}

		decision, err := svc.Redeem(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// RedemptionHistory lists the audit trail for one ticket.
func RedemptionHistory(svc redemptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		ticketID, err := uuid.Parse(chi.URLParam(r, "ticketID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket id"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempts, err := svc.History(r.Context(), device.TenantID, ticketID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attempts)
	}
}
