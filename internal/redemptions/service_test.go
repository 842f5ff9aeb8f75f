package redemptions

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/playpasshq/playpass-backend/internal/catalog"
	"github.com/playpasshq/playpass-backend/internal/tickets"
	"github.com/playpasshq/playpass-backend/pkg/config"
	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

type fixture struct {
	svc      Service
	signer   *security.Signer
	conn     *gorm.DB
	tenantID uuid.UUID
	storeID  uuid.UUID
	deviceID uuid.UUID
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:redemptions_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Package{}, &models.Ticket{}, &models.Redemption{}, &models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	keyring, err := security.NewKeyring(config.SigningConfig{
		Keys:          map[string]string{"v1": "test-signing-key"},
		ActiveVersion: "v1",
	})
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	signer := security.NewSigner(keyring)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	if err != nil {
		t.Fatalf("catalog.NewService: %v", err)
	}
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(
		dbpkg.FromGorm(conn),
		NewRepository(conn),
		tickets.NewRepository(conn),
		catalogSvc,
		signer,
		events,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &fixture{
		svc:      svc,
		signer:   signer,
		conn:     conn,
		tenantID: uuid.New(),
		storeID:  uuid.New(),
		deviceID: uuid.New(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type ticketSpec struct {
	ticketType   enums.TicketType
	quota        int
	used         int
	status       enums.TicketStatus
	validFrom    time.Time
	validTo      time.Time
	boundDevices []uuid.UUID
	badSignature bool
	tenantID     uuid.UUID
	policy       enums.TimepassPolicy
	scanMinutes  int
}

func (fx *fixture) seedTicket(t *testing.T, spec ticketSpec) *models.Ticket {
	t.Helper()
	if spec.status == "" {
		spec.status = enums.TicketStatusActive
	}
	if spec.validFrom.IsZero() {
		spec.validFrom = fx.now.Add(-time.Hour)
	}
	if spec.validTo.IsZero() {
		spec.validTo = fx.now.Add(time.Hour)
	}
	if spec.tenantID == uuid.Nil {
		spec.tenantID = fx.tenantID
	}
	if spec.policy == "" {
		spec.policy = enums.TimepassPolicyFixedDecrement
	}

	packageID := uuid.New()
	pkg := &models.Package{
		ID:                  packageID,
		TenantID:            spec.tenantID,
		Name:                "Test Package",
		Type:                spec.ticketType,
		QuotaOrMinutes:      spec.quota,
		ValidityMinutes:     120,
		TimepassPolicy:      spec.policy,
		TimepassScanMinutes: spec.scanMinutes,
		Price:               decimal.NewFromInt(20),
	}
	if err := fx.conn.Create(pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}

	ticketID := uuid.New()
	qrToken := uuid.NewString()
	signature, keyVersion, err := fx.signer.Sign(security.TicketClaims{
		TicketID:  ticketID,
		QRToken:   qrToken,
		ValidFrom: spec.validFrom,
		ValidTo:   spec.validTo,
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if spec.badSignature {
		signature = "tampered"
	}

	var binding json.RawMessage
	if len(spec.boundDevices) > 0 {
		binding, err = json.Marshal(spec.boundDevices)
		if err != nil {
			t.Fatalf("marshal binding: %v", err)
		}
	}

	ticket := &models.Ticket{
		ID:             ticketID,
		TenantID:       spec.tenantID,
		StoreID:        fx.storeID,
		SaleID:         uuid.New(),
		PackageID:      packageID,
		ShortCode:      uuid.NewString()[:8],
		QRToken:        qrToken,
		Type:           spec.ticketType,
		QuotaOrMinutes: spec.quota,
		Used:           spec.used,
		ValidFrom:      spec.validFrom,
		ValidTo:        spec.validTo,
		Status:         spec.status,
		DeviceBinding:  binding,
		LotNo:          "L20260301-TEST",
		Signature:      signature,
		KeyVersion:     keyVersion,
	}
	if err := fx.conn.Create(ticket).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func (fx *fixture) redeem(t *testing.T, ticket *models.Ticket, at time.Time) *Decision {
	t.Helper()
	decision, err := fx.svc.Redeem(context.Background(), RedeemInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		DeviceID: fx.deviceID,
		QRToken:  ticket.QRToken,
		At:       at,
	})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	return decision
}

func (fx *fixture) countAttempts(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := fx.conn.Model(&models.Redemption{}).Count(&count).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	return count
}

func (fx *fixture) reloadTicket(t *testing.T, id uuid.UUID) *models.Ticket {
	t.Helper()
	var ticket models.Ticket
	if err := fx.conn.First(&ticket, "id = ?", id).Error; err != nil {
		t.Fatalf("reload ticket: %v", err)
	}
	return &ticket
}

func TestRedeemPassDecrementsAndAudits(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeMulti, quota: 5})

	decision := fx.redeem(t, ticket, fx.now)
	if decision.Result != enums.RedemptionResultPass {
		t.Fatalf("expected pass, got %s reason=%v", decision.Result, decision.Reason)
	}
	if decision.Remaining != 4 {
		t.Fatalf("expected 4 remaining, got %d", decision.Remaining)
	}

	reloaded := fx.reloadTicket(t, ticket.ID)
	if reloaded.Used != 1 {
		t.Fatalf("expected used=1, got %d", reloaded.Used)
	}
	if got := fx.countAttempts(t); got != 1 {
		t.Fatalf("expected 1 audit row, got %d", got)
	}
}

func TestRedeemSingleUseSecondScanIsDuplicate(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1})

	first := fx.redeem(t, ticket, fx.now)
	if first.Result != enums.RedemptionResultPass {
		t.Fatalf("first scan should pass, got %s", first.Result)
	}

	second := fx.redeem(t, ticket, fx.now.Add(time.Minute))
	if second.Result != enums.RedemptionResultFail {
		t.Fatal("second scan of a single-use ticket must fail")
	}
	if second.Reason == nil || *second.Reason != enums.RedemptionReasonDuplicateUse {
		t.Fatalf("expected duplicate_use, got %v", second.Reason)
	}

	// both attempts audited, counter untouched by the failure
	if got := fx.countAttempts(t); got != 2 {
		t.Fatalf("expected 2 audit rows, got %d", got)
	}
	if reloaded := fx.reloadTicket(t, ticket.ID); reloaded.Used != 1 {
		t.Fatalf("used must stay 1, got %d", reloaded.Used)
	}
}

// contestedQuotaRepo lets another scan commit between the service's ticket
// read and its guarded increment, forcing the increment to find the quota
// already consumed.
type contestedQuotaRepo struct {
	Repository
	winner func()
	fired  *bool
}

func (r *contestedQuotaRepo) WithTx(tx *gorm.DB) Repository {
	return &contestedQuotaRepo{Repository: r.Repository.WithTx(tx), winner: r.winner, fired: r.fired}
}

func (r *contestedQuotaRepo) ConsumeQuota(ctx context.Context, ticketID uuid.UUID, amount int) (bool, error) {
	if !*r.fired {
		*r.fired = true
		r.winner()
	}
	return r.Repository.ConsumeQuota(ctx, ticketID, amount)
}

func TestRedeemSimultaneousScansExactlyOnePass(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1})

	// the losing scanner reads the ticket with quota available, then the
	// winning scan commits a full redemption before the loser's increment
	var winner *Decision
	fired := false
	catalogSvc, err := catalog.NewService(catalog.NewRepository(fx.conn))
	if err != nil {
		t.Fatalf("catalog.NewService: %v", err)
	}
	loserRepo := &contestedQuotaRepo{
		Repository: NewRepository(fx.conn),
		winner:     func() { winner = fx.redeem(t, ticket, fx.now) },
		fired:      &fired,
	}
	loserSvc, err := NewService(
		dbpkg.FromGorm(fx.conn),
		loserRepo,
		tickets.NewRepository(fx.conn),
		catalogSvc,
		fx.signer,
		outbox.NewService(outbox.NewRepository(fx.conn), nil),
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	loser, err := loserSvc.Redeem(context.Background(), RedeemInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		DeviceID: fx.deviceID,
		QRToken:  ticket.QRToken,
		At:       fx.now,
	})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if winner == nil || winner.Result != enums.RedemptionResultPass {
		t.Fatalf("winning scan must pass, got %+v", winner)
	}
	if loser.Result != enums.RedemptionResultFail {
		t.Fatalf("losing scan must fail, got %s", loser.Result)
	}
	if loser.Reason == nil || *loser.Reason != enums.RedemptionReasonDuplicateUse {
		t.Fatalf("expected duplicate_use, got %v", loser.Reason)
	}

	// exactly one pass, both attempts audited, quota consumed once
	if got := fx.countAttempts(t); got != 2 {
		t.Fatalf("expected 2 audit rows, got %d", got)
	}
	var passes int64
	if err := fx.conn.Model(&models.Redemption{}).
		Where("result = ?", enums.RedemptionResultPass).
		Count(&passes).Error; err != nil {
		t.Fatalf("count passes: %v", err)
	}
	if passes != 1 {
		t.Fatalf("expected exactly 1 pass, got %d", passes)
	}
	if reloaded := fx.reloadTicket(t, ticket.ID); reloaded.Used != 1 {
		t.Fatalf("used must stay 1, got %d", reloaded.Used)
	}
}

func TestRedeemMultiUseExhausts(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeMulti, quota: 2, used: 2})

	decision := fx.redeem(t, ticket, fx.now)
	if decision.Reason == nil || *decision.Reason != enums.RedemptionReasonExhausted {
		t.Fatalf("expected exhausted, got %v", decision.Reason)
	}
}

func TestRedeemUnknownTokenFailsWithoutLeaking(t *testing.T) {
	fx := newFixture(t)

	decision, err := fx.svc.Redeem(context.Background(), RedeemInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		DeviceID: fx.deviceID,
		QRToken:  "no-such-token",
		At:       fx.now,
	})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if decision.Result != enums.RedemptionResultFail {
		t.Fatal("unknown token must fail")
	}
	if decision.Reason == nil || *decision.Reason != enums.RedemptionReasonInvalidSignature {
		t.Fatalf("expected invalid_signature, got %v", decision.Reason)
	}
	if decision.TicketID != nil {
		t.Fatal("unknown token must not expose a ticket id")
	}
	if got := fx.countAttempts(t); got != 1 {
		t.Fatalf("unknown token still audits: expected 1 row, got %d", got)
	}
}

func TestRedeemCrossTenantBehavesAsUnknown(t *testing.T) {
	fx := newFixture(t)
	foreign := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, tenantID: uuid.New()})

	decision, err := fx.svc.Redeem(context.Background(), RedeemInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		DeviceID: fx.deviceID,
		QRToken:  foreign.QRToken,
		At:       fx.now,
	})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if decision.Reason == nil || *decision.Reason != enums.RedemptionReasonInvalidSignature {
		t.Fatalf("cross-tenant scan must look like an unknown ticket, got %v", decision.Reason)
	}
	if decision.TicketID != nil {
		t.Fatal("cross-tenant scan must not expose the ticket id")
	}
}

func TestRedeemTamperedSignature(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, badSignature: true})

	decision := fx.redeem(t, ticket, fx.now)
	if decision.Reason == nil || *decision.Reason != enums.RedemptionReasonInvalidSignature {
		t.Fatalf("expected invalid_signature, got %v", decision.Reason)
	}
	if reloaded := fx.reloadTicket(t, ticket.ID); reloaded.Used != 0 {
		t.Fatal("a rejected signature must not mutate the ticket")
	}
}

func TestRedeemStatusAndWindowChecks(t *testing.T) {
	fx := newFixture(t)

	cases := []struct {
		name   string
		spec   ticketSpec
		at     time.Time
		reason enums.RedemptionReason
	}{
		{
			name:   "cancelled",
			spec:   ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, status: enums.TicketStatusCancelled},
			at:     fx.now,
			reason: enums.RedemptionReasonCancelled,
		},
		{
			name:   "refunded",
			spec:   ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, status: enums.TicketStatusRefunded},
			at:     fx.now,
			reason: enums.RedemptionReasonRefunded,
		},
		{
			name:   "not started",
			spec:   ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, validFrom: fx.now.Add(time.Hour), validTo: fx.now.Add(2 * time.Hour)},
			at:     fx.now,
			reason: enums.RedemptionReasonNotStarted,
		},
		{
			name:   "expired",
			spec:   ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, validFrom: fx.now.Add(-2 * time.Hour), validTo: fx.now.Add(-time.Hour)},
			at:     fx.now,
			reason: enums.RedemptionReasonExpired,
		},
		{
			name:   "wrong device",
			spec:   ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, boundDevices: []uuid.UUID{uuid.New()}},
			at:     fx.now,
			reason: enums.RedemptionReasonWrongDevice,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := fx.seedTicket(t, tc.spec)
			decision := fx.redeem(t, ticket, tc.at)
			if decision.Result != enums.RedemptionResultFail {
				t.Fatalf("expected fail, got %s", decision.Result)
			}
			if decision.Reason == nil || *decision.Reason != tc.reason {
				t.Fatalf("expected %s, got %v", tc.reason, decision.Reason)
			}
		})
	}
}

func TestRedeemDeviceBindingAllowsMember(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{
		ticketType:   enums.TicketTypeSingle,
		quota:        1,
		boundDevices: []uuid.UUID{uuid.New(), fx.deviceID},
	})

	decision := fx.redeem(t, ticket, fx.now)
	if decision.Result != enums.RedemptionResultPass {
		t.Fatalf("bound member device should pass, got %s reason=%v", decision.Result, decision.Reason)
	}
}

func TestRedeemTimepassFixedDecrement(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{
		ticketType:  enums.TicketTypeTimepass,
		quota:       60,
		policy:      enums.TimepassPolicyFixedDecrement,
		scanMinutes: 45,
	})

	first := fx.redeem(t, ticket, fx.now)
	if first.Result != enums.RedemptionResultPass || first.Remaining != 15 {
		t.Fatalf("expected pass with 15 remaining, got %s remaining=%d", first.Result, first.Remaining)
	}

	// the last scan burns only what is left
	second := fx.redeem(t, ticket, fx.now.Add(time.Minute))
	if second.Result != enums.RedemptionResultPass || second.Remaining != 0 {
		t.Fatalf("expected pass with 0 remaining, got %s remaining=%d", second.Result, second.Remaining)
	}

	third := fx.redeem(t, ticket, fx.now.Add(2*time.Minute))
	if third.Reason == nil || *third.Reason != enums.RedemptionReasonExhausted {
		t.Fatalf("expected exhausted, got %v", third.Reason)
	}
}

func TestRedeemTimepassEntryExit(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{
		ticketType: enums.TicketTypeTimepass,
		quota:      120,
		policy:     enums.TimepassPolicyEntryExit,
	})

	entry := fx.redeem(t, ticket, fx.now)
	if entry.Result != enums.RedemptionResultPass {
		t.Fatalf("entry scan should pass, got %s", entry.Result)
	}
	if reloaded := fx.reloadTicket(t, ticket.ID); reloaded.Used != 0 {
		t.Fatalf("entry scan burns nothing, used=%d", reloaded.Used)
	}

	exit := fx.redeem(t, ticket, fx.now.Add(30*time.Minute))
	if exit.Result != enums.RedemptionResultPass {
		t.Fatalf("exit scan should pass, got %s", exit.Result)
	}
	if reloaded := fx.reloadTicket(t, ticket.ID); reloaded.Used != 30 {
		t.Fatalf("exit scan burns elapsed minutes, used=%d", reloaded.Used)
	}
}

func TestRedeemReplayByEventID(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeMulti, quota: 5})

	eventID := uuid.New()
	input := RedeemInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		DeviceID: fx.deviceID,
		QRToken:  ticket.QRToken,
		At:       fx.now,
		EventID:  &eventID,
	}

	first, err := fx.svc.Redeem(context.Background(), input)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Result != enums.RedemptionResultPass || first.Replayed {
		t.Fatalf("first delivery should evaluate, got result=%s replayed=%v", first.Result, first.Replayed)
	}

	second, err := fx.svc.Redeem(context.Background(), input)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed {
		t.Fatal("replay must be served from the audit log")
	}
	if second.RedemptionID != first.RedemptionID {
		t.Fatal("replay must return the stored decision")
	}

	// no double decrement, no second audit row
	if reloaded := fx.reloadTicket(t, ticket.ID); reloaded.Used != 1 {
		t.Fatalf("replay must not re-consume quota, used=%d", reloaded.Used)
	}
	if got := fx.countAttempts(t); got != 1 {
		t.Fatalf("expected 1 audit row, got %d", got)
	}
}

func TestRedeemFraudReasonEmitsFlaggedEvent(t *testing.T) {
	fx := newFixture(t)
	ticket := fx.seedTicket(t, ticketSpec{ticketType: enums.TicketTypeSingle, quota: 1, used: 1})

	decision := fx.redeem(t, ticket, fx.now)
	if decision.Reason == nil || *decision.Reason != enums.RedemptionReasonDuplicateUse {
		t.Fatalf("expected duplicate_use, got %v", decision.Reason)
	}

	var flagged int64
	err := fx.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventRedemptionFlagged).
		Count(&flagged).Error
	if err != nil {
		t.Fatalf("count flagged: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 redemption_flagged event, got %d", flagged)
	}
}

func TestRedeemValidation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Redeem(context.Background(), RedeemInput{
		TenantID: fx.tenantID,
		DeviceID: fx.deviceID,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
