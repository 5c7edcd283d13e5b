// Package metrics exposes Prometheus collectors for module loading and the
// animate loop. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wasmboot"

// Load results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the loader's collectors.
type Metrics struct {
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	moduleBytes  prometheus.Gauge
	frames       prometheus.Counter
	skipped      prometheus.Counter
	invocations  prometheus.Counter
	hookErrors   prometheus.Counter
	fps          prometheus.Gauge
	hookPresent  prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Module load attempts by result.",
			},
			[]string{"result"},
		),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time to fetch and instantiate a module.",
			Buckets:   prometheus.DefBuckets,
		}),
		moduleBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "module_bytes",
			Help:      "Size of the loaded module binary.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Animate loop ticks.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Ticks on which no hook was published.",
		}),
		invocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_invocations_total",
			Help:      "Successful hook invocations.",
		}),
		hookErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_errors_total",
			Help:      "Hook invocations that trapped.",
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames_per_second",
			Help:      "Smoothed frame rate of the animate loop.",
		}),
		hookPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hook_present",
			Help:      "1 when a hook is published, 0 otherwise.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.loads, m.loadDuration, m.moduleBytes,
			m.frames, m.skipped, m.invocations, m.hookErrors,
			m.fps, m.hookPresent,
		)
	}
	return m
}

// Loaded records a load attempt.
func (m *Metrics) Loaded(took time.Duration, size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.loads.WithLabelValues(ResultError).Inc()
		return
	}
	m.loads.WithLabelValues(ResultOK).Inc()
	m.loadDuration.Observe(took.Seconds())
	m.moduleBytes.Set(float64(size))
}

// Frame records one tick. present reports whether a hook was published.
func (m *Metrics) Frame(fps float64, present bool) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.fps.Set(fps)
	if present {
		m.hookPresent.Set(1)
	} else {
		m.hookPresent.Set(0)
		m.skipped.Inc()
	}
}

// Invoked records a hook invocation outcome.
func (m *Metrics) Invoked(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.hookErrors.Inc()
		return
	}
	m.invocations.Inc()
}
