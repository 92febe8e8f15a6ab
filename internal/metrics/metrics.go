package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jitter",
			Subsystem: "gesture",
			Name:      "notifications_total",
			Help:      "Producer notifications written to a buffer.",
		}, []string{"category", "phase"},
	)
	suppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jitter",
			Subsystem: "gesture",
			Name:      "suppressed_total",
			Help:      "Notifications dropped because the gesture was already consumed.",
		}, []string{"category", "phase"},
	)
	delivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jitter",
			Subsystem: "gesture",
			Name:      "delivered_total",
			Help:      "Gesture records returned to consumers by batch drains.",
		}, []string{"category"},
	)
	pruned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jitter",
			Subsystem: "gesture",
			Name:      "pruned_total",
			Help:      "Stopped gestures removed from buffer and ledger.",
		}, []string{"category"},
	)
	buffered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "jitter",
			Subsystem: "buffer",
			Name:      "buffered",
			Help:      "Gestures currently held in the buffer.",
		}, []string{"category"},
	)
	consumed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "jitter",
			Subsystem: "buffer",
			Name:      "consumed",
			Help:      "Open gestures currently marked as consumed.",
		}, []string{"category"},
	)
	drainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jitter",
			Subsystem: "buffer",
			Name:      "drain_duration_seconds",
			Help:      "Time spent in a single batch drain.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}, []string{"category"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jitter",
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events dropped because the export queue was full.",
		},
	)
	historyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jitter",
			Subsystem: "history",
			Name:      "send_errors_total",
			Help:      "History events a sink failed to accept.",
		}, []string{"sink"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{notifications, suppressed, delivered, pruned, buffered, consumed, drainDuration, historyDropped, historyErrors}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncNotification(category, phase string) {
	if regOK.Load() {
		notifications.WithLabelValues(category, phase).Inc()
	}
}

func IncSuppressed(category, phase string) {
	if regOK.Load() {
		suppressed.WithLabelValues(category, phase).Inc()
	}
}

func IncDelivered(category string) {
	if regOK.Load() {
		delivered.WithLabelValues(category).Inc()
	}
}

func IncPruned(category string) {
	if regOK.Load() {
		pruned.WithLabelValues(category).Inc()
	}
}

func SetBufferState(category string, bufferedN, consumedN int) {
	if regOK.Load() {
		buffered.WithLabelValues(category).Set(float64(bufferedN))
		consumed.WithLabelValues(category).Set(float64(consumedN))
	}
}

func ObserveDrain(category string, seconds float64) {
	if regOK.Load() {
		drainDuration.WithLabelValues(category).Observe(seconds)
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}

func IncHistoryError(sink string) {
	if regOK.Load() {
		historyErrors.WithLabelValues(sink).Inc()
	}
}
