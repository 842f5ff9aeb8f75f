package sales

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/playpasshq/playpass-backend/internal/shifts"
	dbpkg "github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	"github.com/playpasshq/playpass-backend/pkg/enums"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
)

type fixture struct {
	sales  Service
	shifts shifts.Service
	conn   *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:sales_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Sale{}, &models.SaleLineItem{}, &models.Shift{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	client := dbpkg.FromGorm(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	shiftSvc, err := shifts.NewService(client, shifts.NewRepository(conn), events, nil)
	if err != nil {
		t.Fatalf("shifts.NewService: %v", err)
	}
	saleSvc, err := NewService(client, NewRepository(conn), shiftSvc, events, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{sales: saleSvc, shifts: shiftSvc, conn: conn}
}

func TestRecordSaleComputesAmountAndPostsToShift(t *testing.T) {
	fx := newFixture(t)
	tenantID := uuid.New()
	deviceID := uuid.New()

	shift, err := fx.shifts.Open(context.Background(), shifts.OpenInput{
		TenantID: tenantID,
		StoreID:  uuid.New(),
		DeviceID: deviceID,
		OpenedBy: uuid.New(),
		CashOpen: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}

	sale, err := fx.sales.RecordSale(context.Background(), RecordSaleInput{
		TenantID: tenantID,
		StoreID:  shift.StoreID,
		DeviceID: deviceID,
		ShiftID:  &shift.ID,
		Kind:     enums.SaleKindSale,
		Lines: []LineInput{
			{PackageID: uuid.New(), Quantity: 2, UnitPrice: decimal.NewFromInt(15)},
			{PackageID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if !sale.Amount.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected amount 70, got %s", sale.Amount)
	}
	if len(sale.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(sale.LineItems))
	}

	reloaded, err := fx.shifts.GetShift(context.Background(), tenantID, shift.ID)
	if err != nil {
		t.Fatalf("GetShift: %v", err)
	}
	if !reloaded.TotalSales.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected shift total 70, got %s", reloaded.TotalSales)
	}
}

func TestRecordSaleIdempotentBySaleID(t *testing.T) {
	fx := newFixture(t)
	tenantID := uuid.New()
	saleID := uuid.New()

	input := RecordSaleInput{
		SaleID:   saleID,
		TenantID: tenantID,
		StoreID:  uuid.New(),
		DeviceID: uuid.New(),
		Kind:     enums.SaleKindSale,
		Lines:    []LineInput{{PackageID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(25)}},
	}
	first, err := fx.sales.RecordSale(context.Background(), input)
	if err != nil {
		t.Fatalf("first RecordSale: %v", err)
	}
	second, err := fx.sales.RecordSale(context.Background(), input)
	if err != nil {
		t.Fatalf("second RecordSale: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("expected same sale back")
	}

	var count int64
	if err := fx.conn.Model(&models.Sale{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 sale row, got %d", count)
	}
}

func TestRecordRefundPostsToRefundTotal(t *testing.T) {
	fx := newFixture(t)
	tenantID := uuid.New()
	deviceID := uuid.New()

	shift, err := fx.shifts.Open(context.Background(), shifts.OpenInput{
		TenantID: tenantID,
		StoreID:  uuid.New(),
		DeviceID: deviceID,
		OpenedBy: uuid.New(),
		CashOpen: decimal.NewFromInt(0),
	})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}

	if _, err := fx.sales.RecordSale(context.Background(), RecordSaleInput{
		TenantID: tenantID,
		StoreID:  shift.StoreID,
		DeviceID: deviceID,
		ShiftID:  &shift.ID,
		Kind:     enums.SaleKindRefund,
		Lines:    []LineInput{{PackageID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(20)}},
	}); err != nil {
		t.Fatalf("RecordSale refund: %v", err)
	}

	reloaded, _ := fx.shifts.GetShift(context.Background(), tenantID, shift.ID)
	if !reloaded.TotalRefunds.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected refund total 20, got %s", reloaded.TotalRefunds)
	}
	if !reloaded.TotalSales.IsZero() {
		t.Fatalf("sale total should stay zero, got %s", reloaded.TotalSales)
	}
}

func TestRecordSaleClosedShiftFailsWhole(t *testing.T) {
	fx := newFixture(t)
	tenantID := uuid.New()
	deviceID := uuid.New()

	shift, err := fx.shifts.Open(context.Background(), shifts.OpenInput{
		TenantID: tenantID,
		StoreID:  uuid.New(),
		DeviceID: deviceID,
		OpenedBy: uuid.New(),
		CashOpen: decimal.NewFromInt(0),
	})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := fx.shifts.Close(context.Background(), shifts.CloseInput{
		TenantID:    tenantID,
		ShiftID:     shift.ID,
		ClosedBy:    uuid.New(),
		CashCounted: decimal.Zero,
	}); err != nil {
		t.Fatalf("close shift: %v", err)
	}

	_, err = fx.sales.RecordSale(context.Background(), RecordSaleInput{
		TenantID: tenantID,
		StoreID:  shift.StoreID,
		DeviceID: deviceID,
		ShiftID:  &shift.ID,
		Kind:     enums.SaleKindSale,
		Lines:    []LineInput{{PackageID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	// the sale row must roll back with the failed shift update
	var count int64
	if err := fx.conn.Model(&models.Sale{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no sale rows, got %d", count)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.sales.RecordSale(context.Background(), RecordSaleInput{
		TenantID: uuid.New(),
		StoreID:  uuid.New(),
		DeviceID: uuid.New(),
		Kind:     enums.SaleKindSale,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for empty lines, got %v", err)
	}
}
