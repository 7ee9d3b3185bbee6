// Package metrics provides Prometheus collectors for batch runs. A nil
// *Manager is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the collectors of one batch run.
type Manager struct {
	namespace   string
	fitBuckets  []float64
	registry    *prometheus.Registry
	constLabels prometheus.Labels

	tracksRejected prometheus.Counter
	tracksTooShort prometheus.Counter
	pairs          *prometheus.CounterVec
	cells          *prometheus.CounterVec
	itemErrors     *prometheus.CounterVec
	fitDuration    prometheus.Histogram
	batchDuration  prometheus.Gauge
	modelVersion   prometheus.Gauge
	workers        prometheus.Gauge
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithFitBuckets sets the fit-duration histogram buckets in seconds.
func WithFitBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.fitBuckets = buckets
		}
	}
}

// WithConstLabels adds labels to every collector, for example a run id.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.constLabels = labels
		}
	}
}

// NewManager creates a Manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:  "mitosis",
		fitBuckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		registry:   prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.tracksRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "ingest", Name: "tracks_rejected_total",
		Help: "Tracks rejected for malformed or non-monotonic frames", ConstLabels: m.constLabels,
	})
	m.tracksTooShort = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "ingest", Name: "tracks_too_short_total",
		Help: "Tracks excluded from pairing for being too short", ConstLabels: m.constLabels,
	})
	m.pairs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "pairing", Name: "pairs_total",
		Help: "Candidate pairs by outcome", ConstLabels: m.constLabels,
	}, []string{"status"})
	m.cells = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "cells", Name: "cells_total",
		Help: "Reconciled cells by outcome", ConstLabels: m.constLabels,
	}, []string{"outcome"})
	m.itemErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "batch", Name: "item_errors_total",
		Help: "Per-item failures isolated by stage", ConstLabels: m.constLabels,
	}, []string{"stage"})
	m.fitDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "curvefit", Name: "fit_duration_seconds",
		Help: "Breakpoint search time per cell", Buckets: m.fitBuckets, ConstLabels: m.constLabels,
	})
	m.batchDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "batch", Name: "duration_seconds",
		Help: "Wall time of the last batch run", ConstLabels: m.constLabels,
	})
	m.modelVersion = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "classifier", Name: "model_version",
		Help: "Version of the classifier model used", ConstLabels: m.constLabels,
	})
	m.workers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "batch", Name: "workers",
		Help: "Worker pool size", ConstLabels: m.constLabels,
	})
}

// Registry returns the registry holding the collectors.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TracksIngested records ingestion outcomes.
func (m *Manager) TracksIngested(rejected, tooShort int) {
	if m == nil {
		return
	}
	m.tracksRejected.Add(float64(rejected))
	m.tracksTooShort.Add(float64(tooShort))
}

// PairsObserved adds n pairs with the given status.
func (m *Manager) PairsObserved(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.pairs.WithLabelValues(status).Add(float64(n))
}

// CellObserved records one reconciled cell outcome.
func (m *Manager) CellObserved(outcome string) {
	if m == nil {
		return
	}
	m.cells.WithLabelValues(outcome).Inc()
}

// ItemFailed records an isolated per-item failure.
func (m *Manager) ItemFailed(stage string) {
	if m == nil {
		return
	}
	m.itemErrors.WithLabelValues(stage).Inc()
}

// FitObserved records the search time of one cell.
func (m *Manager) FitObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.fitDuration.Observe(d.Seconds())
}

// BatchFinished records batch-level gauges.
func (m *Manager) BatchFinished(d time.Duration, modelVersion, workers int) {
	if m == nil {
		return
	}
	m.batchDuration.Set(d.Seconds())
	m.modelVersion.Set(float64(modelVersion))
	m.workers.Set(float64(workers))
}

// WriteToTextfile writes all metrics in the text exposition format, for the
// node exporter textfile collector.
func (m *Manager) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
