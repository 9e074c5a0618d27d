package core

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the vault Prometheus metrics.
// Uses an isolated prometheus.Registry so vault metrics don't collide
// with the global default registry. Each test gets its own Metrics instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsTotal          *prometheus.CounterVec
	OperationDurationSeconds *prometheus.HistogramVec
	AuthFailuresTotal        *prometheus.CounterVec
	LocalStoreErrorsTotal    *prometheus.CounterVec
	State                    *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all collectors registered
// on an isolated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dekvault_operations_total",
				Help: "Total vault operations by outcome.",
			},
			[]string{"operation", "result"},
		),
		OperationDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dekvault_operation_duration_seconds",
				Help:    "Duration of vault operations in seconds, including key derivation.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"operation"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dekvault_auth_failures_total",
				Help: "Total failed unlock and recovery attempts.",
			},
			[]string{"operation"},
		),
		LocalStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dekvault_local_store_errors_total",
				Help: "Total local key store failures that degraded to session-only operation.",
			},
			[]string{"op"},
		),
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dekvault_state",
				Help: "Current vault state (1 for the active state, 0 otherwise).",
			},
			[]string{"state"},
		),
	}

	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDurationSeconds,
		m.AuthFailuresTotal,
		m.LocalStoreErrorsTotal,
		m.State,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	m.OperationDurationSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
	if errors.Is(err, ErrAuthenticationFailure) {
		m.AuthFailuresTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) localStoreError(op string) {
	if m == nil {
		return
	}
	m.LocalStoreErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for _, st := range States() {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.WithLabelValues(st.String()).Set(v)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthenticationFailure):
		return "auth_failure"
	case errors.Is(err, ErrNotSetup):
		return "not_setup"
	case errors.Is(err, ErrAlreadySetUp):
		return "already_setup"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrOperationInProgress):
		return "in_progress"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotUnlocked):
		return "invalid_state"
	default:
		return "error"
	}
}
