package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Answer pipeline metrics
	QuestionsAnswered *prometheus.CounterVec
	AnswerLatency     prometheus.Histogram

	// Follow-up delivery metrics
	FollowupsDispatched prometheus.Counter
	FollowupsFailed     prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		QuestionsAnswered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "torgbot_questions_answered_total",
			Help: "Total number of answered questions by question type",
		}, []string{"question_type"}),

		AnswerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "torgbot_answer_duration_seconds",
			Help:    "Answer pipeline latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		FollowupsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "torgbot_followups_dispatched_total",
			Help: "Total number of follow-up messages delivered",
		}),

		FollowupsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "torgbot_followups_failed_total",
			Help: "Total number of follow-up deliveries that failed",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance, nil before InitMetrics
func GetMetrics() *Metrics {
	return globalMetrics
}

// recordAnswer updates the answer pipeline metrics, safe to call when metrics
// are not initialized (tests)
func recordAnswer(questionType string, seconds float64) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.QuestionsAnswered.WithLabelValues(questionType).Inc()
	globalMetrics.AnswerLatency.Observe(seconds)
}
