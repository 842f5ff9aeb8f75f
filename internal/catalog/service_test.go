package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
)

type fakeRepository struct {
	getFn  func(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error)
	listFn func(ctx context.Context, tenantID uuid.UUID) ([]models.Package, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) GetByID(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error) {
	if f.getFn != nil {
		return f.getFn(ctx, tenantID, packageID)
	}
	return nil, nil
}

func (f *fakeRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Package, error) {
	if f.listFn != nil {
		return f.listFn(ctx, tenantID)
	}
	return nil, nil
}

func TestGetPackageNotFound(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	_, err = svc.GetPackage(context.Background(), uuid.New(), uuid.New())
	if err == nil {
		t.Fatal("expected not found error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetPackageValidation(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})
	_, err := svc.GetPackage(context.Background(), uuid.Nil, uuid.New())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestValidityWindowAppliesActivationDelay(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})
	pkg := &models.Package{
		ValidityMinutes:        480,
		ActivationDelayMinutes: 120,
	}
	soldAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	validFrom, validTo := svc.ValidityWindow(pkg, soldAt)
	if !validFrom.Equal(soldAt.Add(2 * time.Hour)) {
		t.Fatalf("unexpected validFrom: %s", validFrom)
	}
	if !validTo.Equal(validFrom.Add(8 * time.Hour)) {
		t.Fatalf("unexpected validTo: %s", validTo)
	}
}
