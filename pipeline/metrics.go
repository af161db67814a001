package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes stages and documents. A nil *Metrics records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	documents     *prometheus.CounterVec
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "twine_pipeline_stage_duration_seconds",
				Help:    "Time spent in a document pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "tier", "outcome"},
		),
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twine_pipeline_documents_total",
				Help: "Documents processed by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.stageDuration, m.documents)

	return m
}

func (m *Metrics) observeStage(stage string, tier Tier, outcome Outcome, took time.Duration) {
	if m == nil {
		return
	}

	m.stageDuration.WithLabelValues(stage, tier.String(), outcome.String()).Observe(took.Seconds())
}

func (m *Metrics) countDocument(err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.documents.WithLabelValues(result).Inc()
}
