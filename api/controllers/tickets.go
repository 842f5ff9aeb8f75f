package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/api/middleware"
	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/api/validators"
	"github.com/playpasshq/playpass-backend/internal/tickets"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

type issueTicketsRequest struct {
	SaleID uuid.UUID `json:"sale_id" validate:"required"`
}

type issuedTicket struct {
	Ticket    models.Ticket `json:"ticket"`
	QRPayload string        `json:"qr_payload"`
}

// IssueTickets mints the ticket batch for a completed sale. Replaying the
// same sale returns the already-issued batch (a reprint).
func IssueTickets(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		var req issueTicketsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.IssueForSale(r.Context(), tickets.IssueInput{
			TenantID: device.TenantID,
			StoreID:  device.StoreID,
			SaleID:   req.SaleID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]issuedTicket, len(batch))
		for i := range batch {
			payload, err := svc.QRPayload(&batch[i])
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out[i] = issuedTicket{Ticket: batch[i], QRPayload: payload}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// GetTicket returns one ticket scoped to the caller's tenant.
func GetTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
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

		ticket, err := svc.GetTicket(r.Context(), device.TenantID, ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ticket)
	}
}

// CancelTicket voids an unredeemed ticket.
func CancelTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return voidTicket(svc, logg, svc.Cancel)
}

// RefundTicket voids a ticket as part of a refund flow.
func RefundTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return voidTicket(svc, logg, svc.Refund)
}

func voidTicket(
	svc tickets.Service,
	logg *logger.Logger,
	transition func(ctx context.Context, tenantID, ticketID uuid.UUID) (*models.Ticket, error),
) http.HandlerFunc {
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

		ticket, err := transition(r.Context(), device.TenantID, ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ticket)
	}
}
