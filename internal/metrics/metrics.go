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

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"service"},
	)
	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of supervised restarts.",
		}, []string{"service"},
	)
	serviceCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "crashes_total",
			Help:      "Number of unexpected process exits.",
		}, []string{"service"},
	)
	serviceUnresponsive = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "unresponsive_total",
			Help:      "Number of escalations after repeated failed health probes.",
		}, []string{"service"},
	)
	serviceCooldowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "cooldowns_total",
			Help:      "Number of cooldown pauses after restart storms.",
		}, []string{"service"},
	)
	serviceRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "recoveries_total",
			Help:      "Number of recoveries after a failure.",
		}, []string{"service"},
	)
	probeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "probe_failures_total",
			Help:      "Number of failed health probes.",
		}, []string{"service"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "probe_duration_seconds",
			Help:      "Health probe round-trip time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "up",
			Help:      "Whether the supervised process is currently running.",
		}, []string{"service"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "notifications_total",
			Help:      "Lifecycle webhook deliveries by result.",
		}, []string{"service", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceRestarts, serviceCrashes, serviceUnresponsive,
		serviceCooldowns, serviceRecoveries, probeFailures, probeDuration,
		serviceUp, notifications,
	}
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

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller wires the route and starts the server.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncStart(service string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(service).Inc()
	}
}

func IncRestart(service string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(service).Inc()
	}
}

func IncCrash(service string) {
	if regOK.Load() {
		serviceCrashes.WithLabelValues(service).Inc()
	}
}

func IncUnresponsive(service string) {
	if regOK.Load() {
		serviceUnresponsive.WithLabelValues(service).Inc()
	}
}

func IncCooldown(service string) {
	if regOK.Load() {
		serviceCooldowns.WithLabelValues(service).Inc()
	}
}

func IncRecovery(service string) {
	if regOK.Load() {
		serviceRecoveries.WithLabelValues(service).Inc()
	}
}

func IncProbeFailure(service string) {
	if regOK.Load() {
		probeFailures.WithLabelValues(service).Inc()
	}
}

func ObserveProbeDuration(service string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(service).Observe(seconds)
	}
}

func SetUp(service string, up bool) {
	if regOK.Load() {
		v := float64(0)
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}

func IncNotification(service string, delivered bool) {
	if regOK.Load() {
		result := "ok"
		if !delivered {
			result = "error"
		}
		notifications.WithLabelValues(service, result).Inc()
	}
}
