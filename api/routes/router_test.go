package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/playpasshq/playpass-backend/internal/catalog"
	"github.com/playpasshq/playpass-backend/internal/devices"
	"github.com/playpasshq/playpass-backend/internal/redemptions"
	"github.com/playpasshq/playpass-backend/internal/sales"
	"github.com/playpasshq/playpass-backend/internal/shifts"
	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	"github.com/playpasshq/playpass-backend/internal/tickets"
	"github.com/playpasshq/playpass-backend/pkg/config"
	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

type routerFixture struct {
	handler  http.Handler
	conn     *gorm.DB
	tenantID uuid.UUID
	storeID  uuid.UUID
	token    string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Device{}, &models.Package{}, &models.Sale{}, &models.SaleLineItem{},
		&models.Ticket{}, &models.Redemption{}, &models.Shift{},
		&models.OutboxEvent{}, &models.SyncAppliedEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{Secret: "router-test-secret", Issuer: "playpass-test", ExpirationMinutes: 60}
	cfg.Signing = config.SigningConfig{Keys: map[string]string{"v1": "router-test-key"}, ActiveVersion: "v1"}
	cfg.Secret = config.SecretConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	client := dbpkg.FromGorm(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	keyring, err := security.NewKeyring(cfg.Signing)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	signer := security.NewSigner(keyring)

	deviceSvc, err := devices.NewService(devices.NewRepository(conn), cfg.JWT, cfg.Secret, logg)
	if err != nil {
		t.Fatalf("devices.NewService: %v", err)
	}
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	if err != nil {
		t.Fatalf("catalog.NewService: %v", err)
	}
	shiftSvc, err := shifts.NewService(client, shifts.NewRepository(conn), events, logg)
	if err != nil {
		t.Fatalf("shifts.NewService: %v", err)
	}
	saleSvc, err := sales.NewService(client, sales.NewRepository(conn), shiftSvc, events, logg)
	if err != nil {
		t.Fatalf("sales.NewService: %v", err)
	}
	ticketSvc, err := tickets.NewService(client, tickets.NewRepository(conn), catalogSvc, saleSvc, signer, events, logg)
	if err != nil {
		t.Fatalf("tickets.NewService: %v", err)
	}
	redemptionSvc, err := redemptions.NewService(
		client, redemptions.NewRepository(conn), tickets.NewRepository(conn),
		catalogSvc, signer, events, nil, logg,
	)
	if err != nil {
		t.Fatalf("redemptions.NewService: %v", err)
	}
	applier, err := syncpkg.NewApplier(syncpkg.NewAppliedRepository(conn), nil, saleSvc, redemptionSvc, shiftSvc, nil, logg, 100)
	if err != nil {
		t.Fatalf("NewApplier: %v", err)
	}

	fx := &routerFixture{
		handler:  NewRouter(cfg, logg, client, nil, deviceSvc, ticketSvc, redemptionSvc, saleSvc, shiftSvc, applier),
		conn:     conn,
		tenantID: uuid.New(),
		storeID:  uuid.New(),
	}
	fx.token = fx.provisionDevice(t)
	return fx
}

// provisionDevice walks the same register/login flow a real terminal uses.
func (fx *routerFixture) provisionDevice(t *testing.T) string {
	t.Helper()
	registered := fx.postJSON(t, "", "/api/v1/devices/register", map[string]any{
		"tenant_id": fx.tenantID,
		"store_id":  fx.storeID,
		"name":      "Gate 1",
	}, http.StatusCreated)

	data := registered["data"].(map[string]any)
	deviceID := data["device"].(map[string]any)["ID"].(string)
	secret := data["secret"].(string)

	login := fx.postJSON(t, "", "/api/v1/devices/login", map[string]any{
		"device_id": deviceID,
		"secret":    secret,
	}, http.StatusOK)
	return login["data"].(map[string]any)["token"].(string)
}

func (fx *routerFixture) postJSON(t *testing.T, token, path string, payload any, wantStatus int) map[string]any {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("POST %s: expected %d, got %d: %s", path, wantStatus, w.Code, w.Body.String())
	}
	var decoded map[string]any
	if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func (fx *routerFixture) seedPackage(t *testing.T) *models.Package {
	t.Helper()
	pkg := &models.Package{
		ID:              uuid.New(),
		TenantID:        fx.tenantID,
		Name:            "Day Pass",
		Type:            enums.TicketTypeSingle,
		QuotaOrMinutes:  1,
		ValidityMinutes: 600,
		TimepassPolicy:  enums.TimepassPolicyFixedDecrement,
		Price:           decimal.NewFromInt(15),
	}
	if err := fx.conn.Create(pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return pkg
}

func TestHealthLiveIsPublic(t *testing.T) {
	fx := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	fx := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/redeem", bytes.NewReader([]byte(`{"qr_token":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSellIssueRedeemFlow(t *testing.T) {
	fx := newRouterFixture(t)
	pkg := fx.seedPackage(t)

	sale := fx.postJSON(t, fx.token, "/api/v1/sales", map[string]any{
		"sale_id": uuid.New(),
		"kind":    "sale",
		"lines": []map[string]any{
			{"package_id": pkg.ID, "quantity": 1, "unit_price": "15"},
		},
	}, http.StatusCreated)
	saleID := sale["data"].(map[string]any)["ID"].(string)

	issued := fx.postJSON(t, fx.token, "/api/v1/tickets/issue", map[string]any{
		"sale_id": saleID,
	}, http.StatusCreated)
	batch := issued["data"].([]any)
	if len(batch) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(batch))
	}
	qrToken, ok := batch[0].(map[string]any)["ticket"].(map[string]any)["QRToken"].(string)
	if !ok || qrToken == "" {
		t.Fatalf("missing qr token in %v", batch[0])
	}

	redeemed := fx.postJSON(t, fx.token, "/api/v1/redeem", map[string]any{
		"qr_token": qrToken,
	}, http.StatusOK)
	if redeemed["data"].(map[string]any)["result"] != "pass" {
		t.Fatalf("expected pass, got %v", redeemed["data"])
	}

	// the single-use ticket is spent now
	again := fx.postJSON(t, fx.token, "/api/v1/redeem", map[string]any{
		"qr_token": qrToken,
	}, http.StatusOK)
	if again["data"].(map[string]any)["result"] != "fail" {
		t.Fatalf("expected fail on second scan, got %v", again["data"])
	}
}

func TestShiftLifecycleOverHTTP(t *testing.T) {
	fx := newRouterFixture(t)

	opened := fx.postJSON(t, fx.token, "/api/v1/shifts/open", map[string]any{
		"opened_by": uuid.New(),
		"cash_open": "100",
	}, http.StatusCreated)
	shiftID := opened["data"].(map[string]any)["ID"].(string)

	body, _ := json.Marshal(map[string]any{"opened_by": uuid.New(), "cash_open": "0"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/open", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+fx.token)
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("second open on same device: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	closed := fx.postJSON(t, fx.token, "/api/v1/shifts/"+shiftID+"/close", map[string]any{
		"closed_by":    uuid.New(),
		"cash_counted": "100",
	}, http.StatusOK)
	if closed["data"] == nil {
		t.Fatal("expected closed shift payload")
	}
}

func TestSyncEndpointAppliesBatch(t *testing.T) {
	fx := newRouterFixture(t)
	pkg := fx.seedPackage(t)

	payload, err := json.Marshal(map[string]any{
		"sale_id": uuid.New(),
		"kind":    "sale",
		"lines": []map[string]any{
			{"package_id": pkg.ID, "quantity": 1, "unit_price": "15"},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	resp := fx.postJSON(t, fx.token, "/api/v1/sync", map[string]any{
		"events": []map[string]any{{
			"event_id":       uuid.New(),
			"operation_type": "sale",
			"payload":        json.RawMessage(payload),
			"occurred_at":    time.Now().UTC(),
		}},
	}, http.StatusOK)

	acks := resp["data"].(map[string]any)["acks"].([]any)
	if len(acks) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(acks))
	}
	if acks[0].(map[string]any)["status"] != "applied" {
		t.Fatalf("expected applied ack, got %v", acks[0])
	}
}
