package tickets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/playpasshq/playpass-backend/internal/catalog"
	"github.com/playpasshq/playpass-backend/internal/sales"
	"github.com/playpasshq/playpass-backend/internal/shifts"
	"github.com/playpasshq/playpass-backend/pkg/config"
	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
	"github.com/playpasshq/playpass-backend/pkg/qr"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

type fixture struct {
	tickets  Service
	sales    sales.Service
	signer   *security.Signer
	conn     *gorm.DB
	tenantID uuid.UUID
	storeID  uuid.UUID
	deviceID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:tickets_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Package{}, &models.Sale{}, &models.SaleLineItem{},
		&models.Ticket{}, &models.Shift{}, &models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := dbpkg.FromGorm(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)

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
	shiftSvc, err := shifts.NewService(client, shifts.NewRepository(conn), events, nil)
	if err != nil {
		t.Fatalf("shifts.NewService: %v", err)
	}
	saleSvc, err := sales.NewService(client, sales.NewRepository(conn), shiftSvc, events, nil)
	if err != nil {
		t.Fatalf("sales.NewService: %v", err)
	}
	ticketSvc, err := NewService(client, NewRepository(conn), catalogSvc, saleSvc, signer, events, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &fixture{
		tickets:  ticketSvc,
		sales:    saleSvc,
		signer:   signer,
		conn:     conn,
		tenantID: uuid.New(),
		storeID:  uuid.New(),
		deviceID: uuid.New(),
	}
}

func (fx *fixture) seedPackage(t *testing.T, ticketType enums.TicketType, quota int) *models.Package {
	t.Helper()
	pkg := &models.Package{
		ID:              uuid.New(),
		TenantID:        fx.tenantID,
		Name:            "Test Package",
		Type:            ticketType,
		QuotaOrMinutes:  quota,
		ValidityMinutes: 12 * 60,
		TimepassPolicy:  enums.TimepassPolicyFixedDecrement,
		Price:           decimal.NewFromInt(25),
	}
	if err := fx.conn.Create(pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return pkg
}

func (fx *fixture) seedSale(t *testing.T, lines []sales.LineInput) *models.Sale {
	t.Helper()
	sale, err := fx.sales.RecordSale(context.Background(), sales.RecordSaleInput{
		TenantID:   fx.tenantID,
		StoreID:    fx.storeID,
		DeviceID:   fx.deviceID,
		Kind:       enums.SaleKindSale,
		Lines:      lines,
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	return sale
}

func TestIssueForSaleMintsAllLines(t *testing.T) {
	fx := newFixture(t)
	pkgA := fx.seedPackage(t, enums.TicketTypeMulti, 10)
	pkgB := fx.seedPackage(t, enums.TicketTypeSingle, 1)
	sale := fx.seedSale(t, []sales.LineInput{
		{PackageID: pkgA.ID, Quantity: 2, UnitPrice: pkgA.Price},
		{PackageID: pkgB.ID, Quantity: 1, UnitPrice: pkgB.Price},
	})

	issued, err := fx.tickets.IssueForSale(context.Background(), IssueInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		SaleID:   sale.ID,
	})
	if err != nil {
		t.Fatalf("IssueForSale: %v", err)
	}
	if len(issued) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(issued))
	}

	seenCodes := map[string]struct{}{}
	for _, ticket := range issued {
		if ticket.Status != enums.TicketStatusActive {
			t.Fatalf("expected active ticket, got %s", ticket.Status)
		}
		if ticket.LotNo != issued[0].LotNo {
			t.Fatal("all tickets in a batch share a lot number")
		}
		if _, dup := seenCodes[ticket.ShortCode]; dup {
			t.Fatalf("duplicate short code %s", ticket.ShortCode)
		}
		seenCodes[ticket.ShortCode] = struct{}{}

		if !fx.signer.Verify(security.TicketClaims{
			TicketID:  ticket.ID,
			QRToken:   ticket.QRToken,
			ValidFrom: ticket.ValidFrom,
			ValidTo:   ticket.ValidTo,
		}, ticket.KeyVersion, ticket.Signature) {
			t.Fatal("issued ticket signature must verify")
		}
	}
}

func TestIssueForSaleIdempotent(t *testing.T) {
	fx := newFixture(t)
	pkg := fx.seedPackage(t, enums.TicketTypeSingle, 1)
	sale := fx.seedSale(t, []sales.LineInput{{PackageID: pkg.ID, Quantity: 2, UnitPrice: pkg.Price}})

	input := IssueInput{TenantID: fx.tenantID, StoreID: fx.storeID, SaleID: sale.ID}
	first, err := fx.tickets.IssueForSale(context.Background(), input)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := fx.tickets.IssueForSale(context.Background(), input)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("reprint should return the same batch: %d != %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Fatal("reprint must not mint new tickets")
	}

	var count int64
	if err := fx.conn.Model(&models.Ticket{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ticket rows, got %d", count)
	}
}

func TestIssueForSaleUnknownPackageFailsWholeBatch(t *testing.T) {
	fx := newFixture(t)
	pkg := fx.seedPackage(t, enums.TicketTypeSingle, 1)
	sale := fx.seedSale(t, []sales.LineInput{
		{PackageID: pkg.ID, Quantity: 1, UnitPrice: pkg.Price},
		{PackageID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	})

	_, err := fx.tickets.IssueForSale(context.Background(), IssueInput{
		TenantID: fx.tenantID,
		StoreID:  fx.storeID,
		SaleID:   sale.ID,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	var count int64
	if err := fx.conn.Model(&models.Ticket{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("all-or-nothing: expected 0 tickets, got %d", count)
	}
}

func TestCancelAndRefundTransitions(t *testing.T) {
	fx := newFixture(t)
	pkg := fx.seedPackage(t, enums.TicketTypeSingle, 1)
	sale := fx.seedSale(t, []sales.LineInput{{PackageID: pkg.ID, Quantity: 2, UnitPrice: pkg.Price}})
	issued, err := fx.tickets.IssueForSale(context.Background(), IssueInput{
		TenantID: fx.tenantID, StoreID: fx.storeID, SaleID: sale.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cancelled, err := fx.tickets.Cancel(context.Background(), fx.tenantID, issued[0].ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != enums.TicketStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// cancelling again is a no-op
	again, err := fx.tickets.Cancel(context.Background(), fx.tenantID, issued[0].ID)
	if err != nil {
		t.Fatalf("repeat Cancel: %v", err)
	}
	if again.Status != enums.TicketStatusCancelled {
		t.Fatal("repeat cancel should return the cancelled ticket")
	}

	// a cancelled ticket cannot become refunded
	_, err = fx.tickets.Refund(context.Background(), fx.tenantID, issued[0].ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	refunded, err := fx.tickets.Refund(context.Background(), fx.tenantID, issued[1].ID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != enums.TicketStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
}

func TestQRPayloadRoundTrips(t *testing.T) {
	fx := newFixture(t)
	pkg := fx.seedPackage(t, enums.TicketTypeTimepass, 120)
	sale := fx.seedSale(t, []sales.LineInput{{PackageID: pkg.ID, Quantity: 1, UnitPrice: pkg.Price}})
	issued, err := fx.tickets.IssueForSale(context.Background(), IssueInput{
		TenantID: fx.tenantID, StoreID: fx.storeID, SaleID: sale.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	encoded, err := fx.tickets.QRPayload(&issued[0])
	if err != nil {
		t.Fatalf("QRPayload: %v", err)
	}
	payload, err := qr.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.TicketID != issued[0].ID || payload.QRToken != issued[0].QRToken {
		t.Fatal("payload identity mismatch")
	}
	if payload.Signature != issued[0].Signature || payload.KeyVersion != issued[0].KeyVersion {
		t.Fatal("payload signature mismatch")
	}
}

func TestFindByQRTokenAndShortCode(t *testing.T) {
	fx := newFixture(t)
	pkg := fx.seedPackage(t, enums.TicketTypeSingle, 1)
	sale := fx.seedSale(t, []sales.LineInput{{PackageID: pkg.ID, Quantity: 1, UnitPrice: pkg.Price}})
	issued, err := fx.tickets.IssueForSale(context.Background(), IssueInput{
		TenantID: fx.tenantID, StoreID: fx.storeID, SaleID: sale.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	byToken, err := fx.tickets.FindByQRToken(context.Background(), issued[0].QRToken)
	if err != nil || byToken == nil || byToken.ID != issued[0].ID {
		t.Fatalf("FindByQRToken: ticket=%v err=%v", byToken, err)
	}
	byCode, err := fx.tickets.FindByShortCode(context.Background(), fx.tenantID, issued[0].ShortCode)
	if err != nil || byCode == nil || byCode.ID != issued[0].ID {
		t.Fatalf("FindByShortCode: ticket=%v err=%v", byCode, err)
	}

	missing, err := fx.tickets.FindByQRToken(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("FindByQRToken missing: %v", err)
	}
	if missing != nil {
		t.Fatal("unknown token should return nil")
	}
}
