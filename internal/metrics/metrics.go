// Package metrics counts what a refresh pass did, for export to the
// node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pass results.
const (
	ResultWritten   = "written"
	ResultUnchanged = "unchanged"
	ResultEmpty     = "empty"
	ResultFailed    = "failed"
)

type Metrics struct {
	registry     *prometheus.Registry
	Passes       *prometheus.CounterVec
	Probes       *prometheus.CounterVec
	Candidates   prometheus.Gauge
	Validated    prometheus.Gauge
	PassDuration prometheus.Gauge
	LastSuccess  prometheus.Gauge
}

// New registers the refresh metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "summarize_refresh_passes_total",
			Help: "Refresh passes by result",
		}, []string{"result"}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "summarize_refresh_probes_total",
			Help: "Generation probes by outcome",
		}, []string{"outcome"}),
		Candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "summarize_refresh_candidates",
			Help: "Free models that passed the filter in the last pass",
		}),
		Validated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "summarize_refresh_validated",
			Help: "Free models validated in the last pass",
		}),
		PassDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "summarize_refresh_pass_duration_seconds",
			Help: "Wall time of the last pass",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "summarize_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last pass that wrote the config",
		}),
	}
	m.registry.MustRegister(m.Passes, m.Probes, m.Candidates, m.Validated, m.PassDuration, m.LastSuccess)
	return m
}

func (m *Metrics) RecordProbe(outcome string) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(outcome).Inc()
}

// RecordPass records the end of a pass.
func (m *Metrics) RecordPass(result string, candidates, validated int, elapsed time.Duration, now time.Time) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(result).Inc()
	m.Candidates.Set(float64(candidates))
	m.Validated.Set(float64(validated))
	m.PassDuration.Set(elapsed.Seconds())
	if result == ResultWritten {
		m.LastSuccess.Set(float64(now.Unix()))
	}
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
