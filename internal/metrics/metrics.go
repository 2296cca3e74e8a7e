package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successfully evaluated plans.
	OutcomeSuccess = "success"
	// OutcomeError labels plans whose evaluation aborted.
	OutcomeError = "error"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvh_engine",
			Name:      "evaluations_total",
			Help:      "Total number of plan evaluations handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	evaluationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dvh_engine",
			Name:      "evaluation_seconds",
			Help:      "Plan evaluation latency in seconds.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// Register attaches dvh-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		evaluationsTotal,
		evaluationDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvaluation records a plan evaluation duration and outcome label.
func ObserveEvaluation(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	evaluationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	evaluationDurationSeconds.Observe(duration.Seconds())
}
