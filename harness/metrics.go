package harness

import (
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// LatencySummary holds per-write latency statistics in microseconds.
type LatencySummary struct {
	Count uint64  `json:"count"`
	Mean  float64 `json:"mean_us"`
	P50   float64 `json:"p50_us"`
	P90   float64 `json:"p90_us"`
	P99   float64 `json:"p99_us"`
	P999  float64 `json:"p999_us"`
}

// Metrics records per-write observations for one run. Its registry can be
// served over HTTP while the run is in progress. All methods are safe for
// concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	latency  prometheus.Summary
	writes   prometheus.Counter
	bytes    prometheus.Counter
	failures prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "procbench_write_latency_seconds",
			Help: "Latency of a single procedure insert",
			Objectives: map[float64]float64{
				0.5:   0.05,
				0.9:   0.01,
				0.99:  0.001,
				0.999: 0.0001,
			},
			MaxAge: 24 * time.Hour,
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procbench_writes_total",
			Help: "Procedures successfully inserted",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procbench_state_bytes_total",
			Help: "Procedure state bytes successfully inserted",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procbench_write_failures_total",
			Help: "Procedure inserts that returned an error",
		}),
	}

	m.registry.MustRegister(m.latency, m.writes, m.bytes, m.failures)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observe(d time.Duration, stateBytes int) {
	m.latency.Observe(d.Seconds())
	m.writes.Inc()
	m.bytes.Add(float64(stateBytes))
}

func (m *Metrics) fail() {
	m.failures.Inc()
}

// Latency snapshots the write latency summary.
func (m *Metrics) Latency() (LatencySummary, error) {
	var out dto.Metric
	if err := m.latency.Write(&out); err != nil {
		return LatencySummary{}, fmt.Errorf("read latency summary: %w", err)
	}

	s := out.GetSummary()
	ls := LatencySummary{Count: s.GetSampleCount()}

	if ls.Count > 0 {
		ls.Mean = micros(s.GetSampleSum() / float64(ls.Count))
	}

	for _, q := range s.GetQuantile() {
		v := micros(q.GetValue())

		switch q.GetQuantile() {
		case 0.5:
			ls.P50 = v
		case 0.9:
			ls.P90 = v
		case 0.99:
			ls.P99 = v
		case 0.999:
			ls.P999 = v
		}
	}

	return ls, nil
}

// micros converts seconds to microseconds; empty quantiles report NaN.
func micros(seconds float64) float64 {
	if math.IsNaN(seconds) {
		return 0
	}

	return seconds * 1e6
}
