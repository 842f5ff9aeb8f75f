package devicetoken

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPayload captures the data available when minting a device JWT.
type TokenPayload struct {
	DeviceID uuid.UUID
	TenantID uuid.UUID
	StoreID  uuid.UUID
	JTI      string
}

// Claims represents the typed JWT issued to devices after login.
type Claims struct {
	DeviceID uuid.UUID `json:"device_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	StoreID  uuid.UUID `json:"store_id"`
	jwt.RegisteredClaims
}
