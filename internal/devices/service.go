package devices

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/auth/devicetoken"
	"github.com/playpasshq/playpass-backend/pkg/config"
	"github.com/playpasshq/playpass-backend/pkg/db/models"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

// Service handles device enrollment and login.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
}

// RegisterInput enrolls a new terminal for a tenant/store.
type RegisterInput struct {
	TenantID uuid.UUID `json:"tenant_id"`
	StoreID  uuid.UUID `json:"store_id"`
	Name     string    `json:"name"`
}

// RegisterResult carries the one-time provisioning secret. The secret is
// shown once and only the Argon2id hash is stored.
type RegisterResult struct {
	Device *models.Device `json:"device"`
	Secret string         `json:"secret"`
}

// LoginInput exchanges a device id + secret for a JWT.
type LoginInput struct {
	DeviceID uuid.UUID `json:"device_id"`
	Secret   string    `json:"secret"`
}

// LoginResult is the minted token plus its expiry.
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Device    *models.Device `json:"device"`
}

type service struct {
	repo      Repository
	jwtCfg    config.JWTConfig
	secretCfg config.SecretConfig
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires a device service.
func NewService(repo Repository, jwtCfg config.JWTConfig, secretCfg config.SecretConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "device repository required")
	}
	return &service{
		repo:      repo,
		jwtCfg:    jwtCfg,
		secretCfg: secretCfg,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if input.TenantID == uuid.Nil || input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and store id are required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device name is required")
	}

	secret, err := security.GenerateProvisioningSecret(24)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating device secret")
	}
	hash, err := security.HashSecret(secret, s.secretCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing device secret")
	}

	device := &models.Device{
		ID:         uuid.New(),
		TenantID:   input.TenantID,
		StoreID:    input.StoreID,
		Name:       input.Name,
		SecretHash: hash,
	}
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating device")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithDeviceID(ctx, device.ID.String()), "device registered")
	}
	return &RegisterResult{Device: device, Secret: secret}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.DeviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}
	if input.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device secret is required")
	}

	device, err := s.repo.GetByID(ctx, input.DeviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading device")
	}
	if device == nil {
		// same code as a bad secret so login probes can't enumerate ids
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid device credentials")
	}

	ok, err := security.VerifySecret(input.Secret, device.SecretHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying device secret")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid device credentials")
	}

	now := s.now()
	token, err := devicetoken.Mint(s.jwtCfg, now, devicetoken.TokenPayload{
		DeviceID: device.ID,
		TenantID: device.TenantID,
		StoreID:  device.StoreID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting device token")
	}

	if err := s.repo.TouchLastSeen(ctx, device.ID, now); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithDeviceID(ctx, device.ID.String()), "updating device last seen failed")
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: now.Add(s.jwtCfg.TokenTTL()),
		Device:    device,
	}, nil
}
