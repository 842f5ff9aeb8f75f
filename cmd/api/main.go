package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/playpasshq/playpass-backend/api/routes"
	"github.com/playpasshq/playpass-backend/internal/catalog"
	"github.com/playpasshq/playpass-backend/internal/devices"
	"github.com/playpasshq/playpass-backend/internal/redemptions"
	"github.com/playpasshq/playpass-backend/internal/sales"
	"github.com/playpasshq/playpass-backend/internal/shifts"
	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	"github.com/playpasshq/playpass-backend/internal/tickets"
	"github.com/playpasshq/playpass-backend/pkg/config"
	"github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/metrics"
	"github.com/playpasshq/playpass-backend/pkg/migrate"
	"github.com/playpasshq/playpass-backend/pkg/outbox"
	"github.com/playpasshq/playpass-backend/pkg/outbox/idempotency"
	"github.com/playpasshq/playpass-backend/pkg/redis"
	"github.com/playpasshq/playpass-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	keyring, err := security.NewKeyring(cfg.Signing)
	if err != nil {
		logg.Error(context.Background(), "failed to load signing keys", err)
		os.Exit(1)
	}
	signer := security.NewSigner(keyring)

	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	gate := metrics.NewGateMetrics(prometheus.DefaultRegisterer)

	deviceService, err := devices.NewService(devices.NewRepository(conn), cfg.JWT, cfg.Secret, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create device service", err)
		os.Exit(1)
	}
	catalogService, err := catalog.NewService(catalog.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}
	shiftService, err := shifts.NewService(dbClient, shifts.NewRepository(conn), events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create shift service", err)
		os.Exit(1)
	}
	saleService, err := sales.NewService(dbClient, sales.NewRepository(conn), shiftService, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sale service", err)
		os.Exit(1)
	}
	ticketService, err := tickets.NewService(dbClient, tickets.NewRepository(conn), catalogService, saleService, signer, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ticket service", err)
		os.Exit(1)
	}
	redemptionService, err := redemptions.NewService(
		dbClient, redemptions.NewRepository(conn), tickets.NewRepository(conn),
		catalogService, signer, events, gate, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption service", err)
		os.Exit(1)
	}

	idem, err := idempotency.NewManager(redisClient, cfg.Sync.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}
	syncApplier, err := syncpkg.NewApplier(
		syncpkg.NewAppliedRepository(conn), idem,
		saleService, redemptionService, shiftService,
		gate, logg, cfg.Sync.MaxBatchSize,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create sync applier", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			deviceService, ticketService, redemptionService,
			saleService, shiftService, syncApplier,
		),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(stopCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
