package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/playpasshq/playpass-backend/internal/sync/device"
	"github.com/playpasshq/playpass-backend/pkg/config"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

// sync-agent runs on the terminal itself. It drains the device-local
// outbox queue to the server and serves a loopback status endpoint the
// POS UI polls to show sync health.
func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-agent"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sync-agent",
		Level:       logger.ParseLevel(cfg.LogLevel),
		WarnStack:   cfg.LogWarnStack,
	})

	store, err := device.OpenStore(cfg.Agent.DBPath)
	if err != nil {
		logg.Error(context.Background(), "failed to open device store", err)
		os.Exit(1)
	}

	transport := device.NewHTTPTransport(cfg.Agent.ServerURL, cfg.Agent.DeviceToken, cfg.Agent.RequestTimeout)
	engine, err := device.NewEngine(store, transport, cfg.Agent, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sync engine", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"db_path": cfg.Agent.DBPath,
		"server":  cfg.Agent.ServerURL,
	})

	if cfg.Agent.StatusAddr != "" {
		statusServer := &http.Server{
			Addr:    cfg.Agent.StatusAddr,
			Handler: statusHandler(store),
		}
		go func() {
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logg.Error(ctx, "status server stopped unexpectedly", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = statusServer.Close()
		}()
	}

	logg.Info(ctx, "starting sync agent")
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync agent stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync agent shutting down gracefully")
}

func statusHandler(store *device.Store) http.Handler {
	report := func(w http.ResponseWriter, r *http.Request) {
		status, err := store.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", report)
	// same payload on the server-style path so POS clients can share a client
	mux.HandleFunc("GET /api/v1/sync/status", report)
	return mux
}
