// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	LiveEdges           *prometheus.CounterVec // label: direction=online|offline
	ProbeErrors         prometheus.Counter
	AdBreaksStarted     prometheus.Counter
	AdBreaksFailed      prometheus.Counter
	OverlayBroadcasts   *prometheus.CounterVec // label: command
	OverlaySendErrors   prometheus.Counter
	SubmissionsCaptured prometheus.Counter
	RecapsSent          prometheus.Counter
	RecapsFailed        prometheus.Counter
	VODsDeleted         prometheus.Counter
	CommandsHandled     *prometheus.CounterVec // label: command

	// Histograms (seconds)
	ExternalCallDuration *prometheus.HistogramVec // label: call

	// Gauges
	LiveGauge           prometheus.Gauge // 1=live,0=offline
	OverlayClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LiveEdges = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_live_edges_total", Help: "Detected live/offline transitions"}, []string{"direction"})
		ProbeErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_probe_errors_total", Help: "Stream status probe failures"})
		AdBreaksStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_ad_breaks_started_total", Help: "Commercial breaks successfully triggered"})
		AdBreaksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_ad_breaks_failed_total", Help: "Commercial break requests that failed"})
		OverlayBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_overlay_broadcasts_total", Help: "Overlay messages broadcast"}, []string{"command"})
		OverlaySendErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_overlay_send_errors_total", Help: "Overlay client sends that failed"})
		SubmissionsCaptured = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_recap_submissions_total", Help: "Unique chatter submissions captured"})
		RecapsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_recaps_sent_total", Help: "Recaps delivered to the sink"})
		RecapsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_recaps_failed_total", Help: "Recap deliveries that failed"})
		VODsDeleted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_vods_deleted_total", Help: "Archived recordings deleted by cleanup"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_commands_total", Help: "Chat commands dispatched"}, []string{"command"})
		ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "bot_external_call_duration_seconds", Help: "External API call latency", Buckets: prometheus.DefBuckets}, []string{"call"})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_stream_live", Help: "Stream live=1 offline=0"})
		OverlayClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_overlay_clients", Help: "Connected overlay display clients"})
	})
}

// SetLive records the current liveness.
func SetLive(live bool) {
	if LiveGauge == nil {
		return
	}
	if live {
		LiveGauge.Set(1)
	} else {
		LiveGauge.Set(0)
	}
}

// Inc increments c when metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncVec increments the labelled child of v when metrics are initialized.
func IncVec(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// SetOverlayClients records the connected display client count.
func SetOverlayClients(n int) {
	if OverlayClientsGauge != nil {
		OverlayClientsGauge.Set(float64(n))
	}
}

// ObserveCall records the latency of a named external call started at start.
func ObserveCall(call string, start time.Time) {
	if ExternalCallDuration != nil {
		ExternalCallDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
