package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/db/models"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
)

// Service exposes catalog lookups to the issuance path.
type Service interface {
	GetPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error)
	ListPackages(ctx context.Context, tenantID uuid.UUID) ([]models.Package, error)
	ValidityWindow(pkg *models.Package, soldAt time.Time) (validFrom, validTo time.Time)
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error) {
	if tenantID == uuid.Nil || packageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and package id are required")
	}
	pkg, err := s.repo.GetByID(ctx, tenantID, packageID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading package")
	}
	if pkg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}
	return pkg, nil
}

func (s *service) ListPackages(ctx context.Context, tenantID uuid.UUID) ([]models.Package, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	pkgs, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing packages")
	}
	return pkgs, nil
}

// ValidityWindow derives a ticket's validity bounds from the package rules.
// The activation delay shifts the start so a morning sale can gate an
// afternoon session.
func (s *service) ValidityWindow(pkg *models.Package, soldAt time.Time) (time.Time, time.Time) {
	validFrom := soldAt.Add(time.Duration(pkg.ActivationDelayMinutes) * time.Minute)
	validTo := validFrom.Add(time.Duration(pkg.ValidityMinutes) * time.Minute)
	return validFrom, validTo
}
