package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/api/validators"
	"github.com/playpasshq/playpass-backend/internal/devices"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

type registerDeviceRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	StoreID  uuid.UUID `json:"store_id" validate:"required"`
	Name     string    `json:"name" validate:"required,min=2,max=120"`
}

// RegisterDevice enrolls a terminal and returns its one-time provisioning
// secret. Called by back-office tooling, not by devices themselves.
func RegisterDevice(svc devices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "device service unavailable"))
			return
		}

		var req registerDeviceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), devices.RegisterInput{
			TenantID: req.TenantID,
			StoreID:  req.StoreID,
			Name:     validators.SanitizeString(req.Name, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type deviceLoginRequest struct {
	DeviceID uuid.UUID `json:"device_id" validate:"required"`
	Secret   string    `json:"secret" validate:"required"`
}

// DeviceLogin exchanges a device id and provisioning secret for a JWT.
func DeviceLogin(svc devices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "device service unavailable"))
			return
		}

		var req deviceLoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), devices.LoginInput{
			DeviceID: req.DeviceID,
			Secret:   req.Secret,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
