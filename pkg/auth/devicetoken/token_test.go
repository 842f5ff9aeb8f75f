package devicetoken

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "playpass-test",
		ExpirationMinutes: 60,
	}
}

func TestMintAndParse(t *testing.T) {
	cfg := testJWTConfig()
	payload := TokenPayload{
		DeviceID: uuid.New(),
		TenantID: uuid.New(),
		StoreID:  uuid.New(),
	}

	token, err := Mint(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims, err := Parse(cfg, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.DeviceID != payload.DeviceID {
		t.Fatalf("device id mismatch: %s != %s", claims.DeviceID, payload.DeviceID)
	}
	if claims.TenantID != payload.TenantID || claims.StoreID != payload.StoreID {
		t.Fatal("tenant/store claims mismatch")
	}
	if claims.Subject != payload.DeviceID.String() {
		t.Fatalf("subject should be device id, got %s", claims.Subject)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := Mint(cfg, time.Now().Add(-2*time.Hour), TokenPayload{
		DeviceID: uuid.New(),
		TenantID: uuid.New(),
		StoreID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Parse(cfg, token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := Mint(cfg, time.Now(), TokenPayload{
		DeviceID: uuid.New(),
		TenantID: uuid.New(),
		StoreID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	wrong := cfg
	wrong.Secret = "other-secret"
	if _, err := Parse(wrong, token); err == nil {
		t.Fatal("expected wrong secret to fail")
	}
}

func TestMintValidatesPayload(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := Mint(cfg, time.Now(), TokenPayload{TenantID: uuid.New()}); err == nil {
		t.Fatal("expected error for missing device id")
	}
	if _, err := Mint(cfg, time.Now(), TokenPayload{DeviceID: uuid.New()}); err == nil {
		t.Fatal("expected error for missing tenant id")
	}
	noSecret := cfg
	noSecret.Secret = ""
	if _, err := Mint(noSecret, time.Now(), TokenPayload{DeviceID: uuid.New(), TenantID: uuid.New()}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
