package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/api/responses"
	"github.com/playpasshq/playpass-backend/pkg/auth/devicetoken"
	"github.com/playpasshq/playpass-backend/pkg/config"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

// DeviceAuth validates a device bearer token and seeds the request context
// with the device identity.
func DeviceAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := devicetoken.Parse(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.DeviceID == uuid.Nil || claims.TenantID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "incomplete device identity"))
				return
			}

			ctx := WithDevice(r.Context(), DeviceContext{
				DeviceID: claims.DeviceID,
				TenantID: claims.TenantID,
				StoreID:  claims.StoreID,
			})
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, claims.DeviceID.String())
				ctx = logg.WithTenantID(ctx, claims.TenantID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
