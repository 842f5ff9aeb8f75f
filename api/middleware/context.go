package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxDevice contextKey = "device"

// DeviceContext is the authenticated device identity seeded by the auth
// middleware. Every tenant-scoped handler reads it instead of trusting
// request payloads.
type DeviceContext struct {
	DeviceID uuid.UUID
	TenantID uuid.UUID
	StoreID  uuid.UUID
}

// WithDevice injects the authenticated device identity into the context.
func WithDevice(ctx context.Context, device DeviceContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxDevice, device)
}

// DeviceFromContext returns the authenticated device, if any.
func DeviceFromContext(ctx context.Context) (DeviceContext, bool) {
	if ctx == nil {
		return DeviceContext{}, false
	}
	device, ok := ctx.Value(ctxDevice).(DeviceContext)
	return device, ok
}
