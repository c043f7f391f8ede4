package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booktutor_query_total",
		Help: "Chatbot queries by context mode and outcome.",
	}, []string{"mode", "outcome"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booktutor_query_duration_seconds",
		Help:    "End to end chatbot query latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	RetrievedChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booktutor_retrieved_chunks",
		Help:    "Chunks surfaced per retrieval.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	IndexChapters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booktutor_index_chapters_total",
		Help: "Chapter index operations by outcome.",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booktutor_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})
)

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeFallback = "fallback"
)
