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
	RecapsParsed       prometheus.Counter
	RecapsPersisted    prometheus.Counter
	RecapPersistFailed *prometheus.CounterVec // reason: persistence|auth
	TopicUpdates       *prometheus.CounterVec // result: ok|error
	Broadcasts         *prometheus.CounterVec // result: ok|error|suppressed
	Queries            *prometheus.CounterVec // command, result: ok|not_found|error|ignored
	ReconnectAttempts  prometheus.Counter
	DisconnectsTotal   prometheus.Counter

	// Histograms (seconds)
	ReconnectDelay prometheus.Observer
	LedgerDuration *prometheus.HistogramVec // op
	HandleDuration prometheus.Observer

	// Gauges
	TransportConnected prometheus.Gauge // 1=connected,0=not
	LedgerAuthFailed   prometheus.Gauge // 1 once the datastore rejected the secret
	SupervisorState    *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RecapsParsed = promauto.NewCounter(prometheus.CounterOpts{Name: "recap_announcements_parsed_total", Help: "Ambient messages recognized as production-code announcements"})
		RecapsPersisted = promauto.NewCounter(prometheus.CounterOpts{Name: "recap_records_persisted_total", Help: "Episode records appended to the ledger"})
		RecapPersistFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recap_records_persist_failed_total", Help: "Episode records the ledger failed to append"}, []string{"reason"})
		TopicUpdates = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recap_topic_updates_total", Help: "Canonical channel topic updates"}, []string{"result"})
		Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recap_broadcasts_total", Help: "Recap reposts into the canonical channel"}, []string{"result"})
		Queries = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recap_queries_total", Help: "Direct-mention lookup commands"}, []string{"command", "result"})
		ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "recap_reconnect_attempts_total", Help: "Transport reconnect attempts"})
		DisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "recap_transport_disconnects_total", Help: "Transport close signals observed"})
		ReconnectDelay = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_reconnect_delay_seconds",
			Help:    "Jittered delay before each reconnect attempt",
			Buckets: []float64{0.1, 0.5, 1, 3, 7, 15, 30},
		})
		LedgerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recap_ledger_operation_duration_seconds",
			Help:    "Datastore round-trip duration per ledger operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})
		HandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_message_handle_duration_seconds",
			Help:    "Time spent handling one inbound chat message",
			Buckets: prometheus.DefBuckets,
		})
		TransportConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "recap_transport_connected", Help: "Chat transport connected=1 disconnected=0"})
		LedgerAuthFailed = promauto.NewGauge(prometheus.GaugeOpts{Name: "recap_ledger_auth_failed", Help: "1 when the datastore rejected the shared secret"})
		SupervisorState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "recap_supervisor_state", Help: "Current connection supervisor state (1 for the active state)"}, []string{"state"})
	})
}

// supervisorStates lists the label values SupervisorState is reset across.
var supervisorStates = []string{"connected", "disconnected", "reconnecting"}

// SetSupervisorState marks state as the active supervisor state.
func SetSupervisorState(state string) {
	if SupervisorState == nil {
		return
	}
	for _, s := range supervisorStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SupervisorState.WithLabelValues(s).Set(v)
	}
	if TransportConnected != nil {
		if state == "connected" {
			TransportConnected.Set(1)
		} else {
			TransportConnected.Set(0)
		}
	}
}

// SetLedgerAuthFailed flips the auth gauge.
func SetLedgerAuthFailed(failed bool) {
	if LedgerAuthFailed == nil {
		return
	}
	if failed {
		LedgerAuthFailed.Set(1)
	} else {
		LedgerAuthFailed.Set(0)
	}
}

// Inc increments c when metrics are initialised.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncVec increments the labelled child of v when metrics are initialised.
func IncVec(v *prometheus.CounterVec, labels ...string) {
	if v != nil {
		v.WithLabelValues(labels...).Inc()
	}
}

// Observe records d in obs when metrics are initialised.
func Observe(obs prometheus.Observer, d time.Duration) {
	if obs != nil {
		obs.Observe(d.Seconds())
	}
}

// ObserveLedger records the duration of a ledger operation since start.
func ObserveLedger(op string, start time.Time) {
	if LedgerDuration != nil {
		LedgerDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
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
