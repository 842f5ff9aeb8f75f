package device

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	"github.com/playpasshq/playpass-backend/pkg/config"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
	"github.com/playpasshq/playpass-backend/pkg/logger"
)

// Engine drains the device outbox whenever connectivity allows. Transport
// failures back off exponentially with jitter; per-event verdicts come from
// the server's acks.
type Engine struct {
	store     *Store
	transport Transport
	cfg       config.AgentConfig
	logg      *logger.Logger
	// OnDowngrade fires when the server's authoritative decision contradicts
	// the device's provisional one, so the app can alert the operator.
	OnDowngrade func(ack syncpkg.EventAck)

	backoff time.Duration
}

// NewEngine wires a sync engine over a local store.
func NewEngine(store *Store, transport Transport, cfg config.AgentConfig, logg *logger.Logger) (*Engine, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store required")
	}
	if transport == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transport required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Engine{store: store, transport: transport, cfg: cfg, logg: logg}, nil
}

// Run drains until the context is cancelled. Cancellation between batches or
// mid-request leaves the outbox consistent: unacknowledged events simply
// stay pending.
func (e *Engine) Run(ctx context.Context) error {
	cleanup := time.NewTicker(e.cleanupInterval())
	defer cleanup.Stop()

	for {
		drained, err := e.DrainOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.waitBackoff(ctx)
			continue
		}
		e.backoff = 0

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanup.C:
			e.purge(ctx)
		default:
		}

		if drained > 0 {
			// more may be waiting; keep going without sleeping
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// DrainOnce sends one batch of pending events and applies the acks. Returns
// the number of events taken off the pending queue.
func (e *Engine) DrainOnce(ctx context.Context) (int, error) {
	pending, err := e.store.PendingBatch(ctx, e.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	req := syncpkg.BatchRequest{Events: make([]syncpkg.Event, len(pending))}
	for i, row := range pending {
		req.Events[i] = syncpkg.Event{
			EventID:       row.EventID,
			OperationType: row.OperationType,
			Payload:       row.Payload,
			OccurredAt:    row.CreatedAt,
			LocalDecision: localDecision(row.Payload),
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	resp, err := e.transport.Send(sendCtx, req)
	cancel()
	if err != nil {
		// the whole batch stays pending; each event carries the attempt so
		// a dead server eventually parks them as failed
		for _, row := range pending {
			if recordErr := e.store.RecordAttempt(ctx, row.EventID, err.Error(), e.cfg.MaxAttempts); recordErr != nil {
				return 0, recordErr
			}
		}
		if e.logg != nil {
			e.logg.Warn(e.logg.WithFields(ctx, map[string]any{"batch": len(pending)}), "sync batch undelivered")
		}
		return 0, err
	}

	settled := 0
	for _, ack := range resp.Acks {
		switch ack.Status {
		case syncpkg.AckApplied, syncpkg.AckDuplicate:
			if err := e.store.MarkSynced(ctx, ack.EventID); err != nil {
				return settled, err
			}
			settled++
			if ack.Downgraded() {
				e.handleDowngrade(ctx, ack)
			}
		case syncpkg.AckRejected:
			if err := e.store.MarkFailed(ctx, ack.EventID, ack.Error); err != nil {
				return settled, err
			}
			settled++
		default:
			if err := e.store.RecordAttempt(ctx, ack.EventID, ack.Error, e.cfg.MaxAttempts); err != nil {
				return settled, err
			}
		}
	}
	return settled, nil
}

func (e *Engine) handleDowngrade(ctx context.Context, ack syncpkg.EventAck) {
	if e.logg != nil {
		fields := map[string]any{
			"event_id": ack.EventID.String(),
			"local":    *ack.LocalDecision,
			"server":   *ack.ServerDecision,
		}
		e.logg.Warn(e.logg.WithFields(ctx, fields), "provisional decision downgraded by server")
	}
	if e.OnDowngrade != nil {
		e.OnDowngrade(ack)
	}
}

func (e *Engine) waitBackoff(ctx context.Context) {
	if e.backoff == 0 {
		e.backoff = e.cfg.PollInterval
	} else {
		e.backoff *= 2
	}
	if e.backoff > e.cfg.MaxBackoff {
		e.backoff = e.cfg.MaxBackoff
	}
	// jitter spreads reconnect storms from a fleet of devices
	wait := e.backoff/2 + time.Duration(rand.Int63n(int64(e.backoff/2)+1))
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (e *Engine) purge(ctx context.Context) {
	if e.cfg.SyncedRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-e.cfg.SyncedRetention)
	purged, err := e.store.PurgeSynced(ctx, cutoff)
	if err != nil {
		if e.logg != nil {
			e.logg.Error(ctx, "purging synced events", err)
		}
		return
	}
	if purged > 0 && e.logg != nil {
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{"purged": purged}), "synced events purged")
	}
}

func (e *Engine) cleanupInterval() time.Duration {
	if e.cfg.CleanupInterval <= 0 {
		return time.Hour
	}
	return e.cfg.CleanupInterval
}

// localDecision lifts the provisional outcome out of a redemption payload
// when the device recorded one.
func localDecision(payload json.RawMessage) *string {
	var probe struct {
		LocalDecision *string `json:"local_decision"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil
	}
	return probe.LocalDecision
}
