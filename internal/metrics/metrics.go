package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awaybot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "awaybot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "awaybot_http_requests_in_flight",
			Help: "Number of HTTP requests being served.",
		},
	)

	ChatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awaybot_chat_messages_total",
			Help: "Total number of inbound chat messages by outcome.",
		},
		[]string{"result"},
	)

	CompletionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "awaybot_completion_duration_seconds",
			Help:    "Completion API call duration in seconds, retries included.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	MemoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awaybot_memory_operations_total",
			Help: "Total number of memory store operations.",
		},
		[]string{"store", "op", "result"},
	)

	FactsExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awaybot_facts_extracted_total",
			Help: "Total number of facts stored by the extractor.",
		},
		[]string{"key"},
	)

	ContextBlocks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "awaybot_context_blocks",
			Help:    "Number of blocks in an assembled prompt.",
			Buckets: prometheus.LinearBuckets(1, 4, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		ChatMessagesTotal,
		CompletionDuration,
		MemoryOperationsTotal,
		FactsExtractedTotal,
		ContextBlocks,
	)
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
