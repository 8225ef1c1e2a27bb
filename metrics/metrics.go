package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess    = "success"
	ResultDenied     = "denied"
	ResultFailed     = "failed"
	ResultIncomplete = "incomplete"

	StoreRedis = "redis"
	StoreMongo = "mongo"
)

var (
	// Assessments counts finished assess triggers by result.
	Assessments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examiner_assessments_total",
		Help: "Assessment requests by result.",
	}, []string{"result"})

	// CompletionAttempts counts single calls to the completion endpoint.
	CompletionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examiner_completion_attempts_total",
		Help: "Completion endpoint calls by outcome.",
	}, []string{"outcome"})

	// CompletionDuration tracks the whole retrying call, backoff included.
	CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "examiner_completion_duration_seconds",
		Help:    "Time spent obtaining an assessment from the completion endpoint.",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examiner_store_errors_total",
		Help: "Failed operations against external stores.",
	}, []string{"store"})
)
