// Package observability provides prometheus metrics for the curation
// pipeline and the HTTP endpoint that exposes them.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkivela/packwatch/internal/logging"
)

// Metrics holds all metric collectors. A nil *Metrics is valid and records
// nothing, so wiring metrics stays optional.
type Metrics struct {
	registry *prometheus.Registry

	reportsParsed     *prometheus.CounterVec
	classifications   *prometheus.CounterVec
	reconcilerActions *prometheus.CounterVec
	ledgerWrites      prometheus.Counter
	retryExhausted    prometheus.Counter
	passDuration      *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		reportsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packwatch_reports_total",
			Help: "Detection reports processed, labelled by intake outcome.",
		}, []string{"outcome"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packwatch_classifications_total",
			Help: "Classifier state transitions, labelled by resulting state.",
		}, []string{"state"}),
		reconcilerActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packwatch_reconciler_actions_total",
			Help: "Reconciler ledger repairs and recoveries, labelled by action.",
		}, []string{"action"}),
		ledgerWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packwatch_ledger_writes_total",
			Help: "Batch ledger persist operations.",
		}),
		retryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packwatch_retry_exhausted_total",
			Help: "External calls that exhausted their retry budget.",
		}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "packwatch_pass_duration_seconds",
			Help:    "Duration of one classify+reconcile pass per forum group.",
			Buckets: prometheus.DefBuckets,
		}, []string{"group"}),
	}

	collectors := []prometheus.Collector{
		m.reportsParsed,
		m.classifications,
		m.reconcilerActions,
		m.ledgerWrites,
		m.retryExhausted,
		m.passDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// ReportParsed records one intake outcome: accepted, rejected, duplicate or
// malformed.
func (m *Metrics) ReportParsed(outcome string) {
	if m == nil {
		return
	}
	m.reportsParsed.WithLabelValues(outcome).Inc()
}

// Classified records one state transition.
func (m *Metrics) Classified(state string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(state).Inc()
}

// ReconcilerAction records one reconciler repair action.
func (m *Metrics) ReconcilerAction(action string) {
	if m == nil {
		return
	}
	m.reconcilerActions.WithLabelValues(action).Inc()
}

// LedgerWrite records one batch persist.
func (m *Metrics) LedgerWrite() {
	if m == nil {
		return
	}
	m.ledgerWrites.Inc()
}

// RetryExhausted records one exhausted retry budget.
func (m *Metrics) RetryExhausted() {
	if m == nil {
		return
	}
	m.retryExhausted.Inc()
}

// ObservePass records the duration of one group pass.
func (m *Metrics) ObservePass(group string, d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(group).Observe(d.Seconds())
}

// Serve exposes /metrics on the given address. It blocks, so callers run it
// in its own goroutine; errors other than server shutdown are logged.
func (m *Metrics) Serve(listen string) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	logging.ForService("observability").Info("metrics endpoint listening", "listen", listen)
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
