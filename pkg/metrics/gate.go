package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// GateMetrics records redemption outcomes and sync batch activity.
type GateMetrics struct {
	redemptions  *prometheus.CounterVec
	fraudSignals *prometheus.CounterVec
	syncBatch    *prometheus.HistogramVec
	syncLag      prometheus.Histogram
}

// NewGateMetrics registers the gate metrics on the provided registerer.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		return &GateMetrics{}
	}
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redemption_attempts_total",
		Help: "Redemption attempts by result and reason.",
	}, []string{"result", "reason"})
	fraudSignals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redemption_fraud_signals_total",
		Help: "Redemption failures that indicate copied or replayed tickets.",
	}, []string{"reason"})
	syncBatch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_batch_duration_seconds",
		Help:    "Duration of applying a device sync batch.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	syncLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_event_lag_seconds",
		Help:    "Age of a device event when the server applies it.",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 14400, 86400},
	})
	reg.MustRegister(redemptions, fraudSignals, syncBatch, syncLag)
	return &GateMetrics{
		redemptions:  redemptions,
		fraudSignals: fraudSignals,
		syncBatch:    syncBatch,
		syncLag:      syncLag,
	}
}

// ObserveRedemption records one redemption attempt.
func (g *GateMetrics) ObserveRedemption(result enums.RedemptionResult, reason *enums.RedemptionReason) {
	if g == nil || g.redemptions == nil {
		return
	}
	reasonLabel := ""
	if reason != nil {
		reasonLabel = string(*reason)
	}
	g.redemptions.WithLabelValues(string(result), normalizeLabel(reasonLabel)).Inc()
	if reason != nil && reason.IsFraudSignal() {
		g.fraudSignals.WithLabelValues(string(*reason)).Inc()
	}
}

// ObserveSyncBatch records the duration of one applied batch.
func (g *GateMetrics) ObserveSyncBatch(outcome string, duration time.Duration) {
	if g == nil || g.syncBatch == nil {
		return
	}
	g.syncBatch.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// ObserveSyncLag records how stale an event was when it reached the server.
func (g *GateMetrics) ObserveSyncLag(lag time.Duration) {
	if g == nil || g.syncLag == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	g.syncLag.Observe(lag.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
