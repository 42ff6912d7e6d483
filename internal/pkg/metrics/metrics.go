package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheLookups counts cache reads by prefix and outcome (hit/miss/corrupt/error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocalingo_cache_lookups_total",
			Help: "Cache-aside lookups by outcome",
		},
		[]string{"prefix", "outcome"},
	)

	// QuotaRejections counts rejected creations by resource.
	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocalingo_quota_rejections_total",
			Help: "Creations rejected by the quota gate",
		},
		[]string{"resource", "kind"}, // kind: daily/capacity
	)

	// AIRequests counts provider calls by provider, capability and outcome.
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocalingo_ai_requests_total",
			Help: "AI provider requests",
		},
		[]string{"provider", "capability", "outcome"},
	)

	// AIRequestDuration observes provider latency.
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vocalingo_ai_request_duration_seconds",
			Help:    "Time spent waiting on AI providers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "capability"},
	)

	// EvaluationJobs counts terminal job outcomes.
	EvaluationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocalingo_evaluation_jobs_total",
			Help: "Audio evaluation attempts by terminal status",
		},
		[]string{"status"},
	)

	// EvaluationDuration observes one full pipeline attempt.
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocalingo_evaluation_duration_seconds",
			Help:    "Duration of one audio evaluation attempt",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
