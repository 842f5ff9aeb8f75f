package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/auth/devicetoken"
	"github.com/playpasshq/playpass-backend/pkg/config"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "playpass-test",
		ExpirationMinutes: 60,
	}
}

func TestDeviceAuthSeedsContext(t *testing.T) {
	cfg := jwtConfig()
	payload := devicetoken.TokenPayload{
		DeviceID: uuid.New(),
		TenantID: uuid.New(),
		StoreID:  uuid.New(),
	}
	token, err := devicetoken.Mint(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	var seen DeviceContext
	var called bool
	handler := DeviceAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, called = mustDevice(t, r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !called {
		t.Fatal("handler not reached")
	}
	if seen.DeviceID != payload.DeviceID || seen.TenantID != payload.TenantID || seen.StoreID != payload.StoreID {
		t.Fatalf("context identity mismatch: %+v", seen)
	}
}

func mustDevice(t *testing.T, r *http.Request) (DeviceContext, bool) {
	t.Helper()
	device, ok := DeviceFromContext(r.Context())
	return device, ok
}

func TestDeviceAuthRejectsMissingToken(t *testing.T) {
	handler := DeviceAuth(jwtConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestDeviceAuthRejectsForgedToken(t *testing.T) {
	forged := jwtConfig()
	forged.Secret = "other-secret"
	token, err := devicetoken.Mint(forged, time.Now(), devicetoken.TokenPayload{
		DeviceID: uuid.New(),
		TenantID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	handler := DeviceAuth(jwtConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
