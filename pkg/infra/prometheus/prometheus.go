package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds.
var latencyBuckets = []float64{
	5, 10, 25,
	50, 100, 250,
	500, 1000, 2500,
	5000, 10000, 30000,
}

// Metrics holds the per-process counters of guarded prompt runs on a
// private registry.
type Metrics struct {
	registry *prometheus.Registry

	ClassificationLatency prometheus.Histogram
	VerdictsTotal         *prometheus.CounterVec
	GenerationsTotal      *prometheus.CounterVec
	RunsTotal             *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ClassificationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptarmor_classification_latency_ms",
			Help:    "Model Armor sanitizeUserPrompt latency in milliseconds",
			Buckets: latencyBuckets,
		}),
		VerdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptarmor_verdicts_total",
			Help: "Classification verdicts by overall match state",
		}, []string{"state"}),
		GenerationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptarmor_generations_total",
			Help: "Generation calls by provider and outcome",
		}, []string{"provider", "status"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptarmor_runs_total",
			Help: "Guarded prompt runs by final state",
		}, []string{"state"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile exports the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
