// Package metrics provides Prometheus instrumentation for ledgerlens.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlens",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerlens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysisRunsTotal counts finished analysis runs by outcome.
	AnalysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlens",
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by outcome (complete, invalid_address, ledger_unavailable, canceled, failed).",
		},
		[]string{"outcome"},
	)

	// AnalysisDuration observes wall time of a full run.
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerlens",
		Name:      "analysis_duration_seconds",
		Help:      "Wall time of an analysis run in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	// AnalysisGraphNodes observes discovered nodes per run.
	AnalysisGraphNodes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerlens",
		Name:      "analysis_graph_nodes",
		Help:      "Nodes discovered per analysis run.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
	})

	// AnalysisGraphEdges observes discovered edges per run.
	AnalysisGraphEdges = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerlens",
		Name:      "analysis_graph_edges",
		Help:      "Edges discovered per analysis run.",
		Buckets:   []float64{0, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// ActiveAnalyses tracks runs currently in progress.
	ActiveAnalyses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerlens",
		Name:      "active_analyses",
		Help:      "Analysis runs currently in progress.",
	})

	// NodeFetchFailuresTotal counts per-node data-source errors that were
	// absorbed by the traversal.
	NodeFetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlens",
			Name:      "node_fetch_failures_total",
			Help:      "Per-node ledger fetch failures absorbed during analysis, by stage.",
		},
		[]string{"stage"},
	)

	// LedgerRequestsTotal counts ledger RPC calls by method and outcome.
	LedgerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlens",
			Name:      "ledger_requests_total",
			Help:      "Ledger RPC requests by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// LedgerRequestDuration observes ledger RPC latency by method.
	LedgerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerlens",
			Name:      "ledger_request_duration_seconds",
			Help:      "Ledger RPC latency in seconds, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method"},
	)

	// LedgerCacheHitsTotal counts run-cache hits by method.
	LedgerCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlens",
			Name:      "ledger_cache_hits_total",
			Help:      "Per-run ledger cache hits by method.",
		},
		[]string{"method"},
	)

	// ActiveWebSocketClients tracks connected progress-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerlens",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysisRunsTotal,
		AnalysisDuration,
		AnalysisGraphNodes,
		AnalysisGraphEdges,
		ActiveAnalyses,
		NodeFetchFailuresTotal,
		LedgerRequestsTotal,
		LedgerRequestDuration,
		LedgerCacheHitsTotal,
		ActiveWebSocketClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern keeps cardinality bounded
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
