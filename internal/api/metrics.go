package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dgallion1/corpusqa/internal/answer"
	"github.com/dgallion1/corpusqa/internal/llm"
)

type metrics struct {
	questions   *prometheus.CounterVec
	askDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, stats *llm.Stats) *metrics {
	m := &metrics{
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corpusqa",
			Name:      "questions_total",
			Help:      "Questions answered, by outcome.",
		}, []string{"outcome"}),
		askDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Name:      "ask_duration_seconds",
			Help:      "End-to-end time to answer a question.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
	}
	reg.MustRegister(m.questions, m.askDuration)

	if stats != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "corpusqa",
				Name:      "llm_latency_p95_ms",
				Help:      "95th percentile LLM latency over the rolling window.",
			}, func() float64 { return stats.Snapshot().P95Ms }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "corpusqa",
				Name:      "llm_errors_window",
				Help:      "Failed LLM calls in the rolling window.",
			}, func() float64 { return float64(stats.Snapshot().Errors) }),
		)
	}
	return m
}

func (m *metrics) observeAsk(outcome answer.Outcome, d time.Duration) {
	m.questions.WithLabelValues(string(outcome)).Inc()
	m.askDuration.Observe(d.Seconds())
}
