package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheLookups counts tiered-cache lookups by outcome (hot/store/compute/unavailable).
var CacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketpulse_cache_lookups_total",
		Help: "Total tiered cache lookups by outcome tier",
	},
	[]string{"outcome"},
)

// ProviderRequests counts upstream market data calls by endpoint and status.
var ProviderRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketpulse_provider_requests_total",
		Help: "Total market data provider requests by endpoint and result",
	},
	[]string{"endpoint", "result"},
)

// Stream health metrics
var (
	StreamPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_stream_published_total",
			Help: "Total messages published to per-symbol channels",
		},
		[]string{"type"},
	)

	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketpulse_stream_reconnects_total",
			Help: "Total subscriber reconnect attempts",
		},
	)

	StreamHandlerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketpulse_stream_handler_errors_total",
			Help: "Total subscriber handler errors contained by the dispatch loop",
		},
	)
)

func init() {
	prometheus.MustRegister(CacheLookups, ProviderRequests)
	prometheus.MustRegister(StreamPublished, StreamReconnects, StreamHandlerErrors)
}
