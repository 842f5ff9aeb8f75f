package controllers

import (
	"net/http"

	"github.com/playpasshq/playpass-backend/api/middleware"
	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/api/validators"
	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

// ApplySyncBatch applies a device's queued events at most once each and
// returns per-event acks the device reconciles against.
func ApplySyncBatch(applier syncpkg.Applier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := middleware.DeviceFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		var req syncpkg.BatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := applier.ApplyBatch(r.Context(), syncpkg.DeviceIdentity{
			DeviceID: device.DeviceID,
			TenantID: device.TenantID,
			StoreID:  device.StoreID,
		}, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
