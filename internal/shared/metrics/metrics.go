package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this service exports.
var Registry = prometheus.NewRegistry()

var (
	analysisStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_started_total",
		Help: "Total analyses started",
	})
	analysisCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_completed_total",
		Help: "Total analyses completed",
	})
	analysisFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_failed_total",
		Help: "Total analyses failed",
	})
	analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_duration_ms",
		Help:    "Analysis duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
	})
	updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_updates_total",
		Help: "Session updates by transport source and outcome",
	}, []string{"source", "outcome"})
	transportRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_requests_total",
		Help: "HTTP attempts issued to the analysis engine",
	}, []string{"method", "code"})
	transportRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transport_retries_total",
		Help: "HTTP attempts that were retried",
	})
	socketReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socket_reconnects_total",
		Help: "Push channel reconnect attempts",
	})
	resultsFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "results_fetches_total",
		Help: "Results fetcher lookups by outcome",
	}, []string{"outcome"})
	handlerPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_handler_panics_total",
		Help: "Panics recovered in HTTP handlers by route",
	}, []string{"route"})
)

func init() {
	Registry.MustRegister(
		analysisStartedTotal,
		analysisCompletedTotal,
		analysisFailedTotal,
		analysisDuration,
		updatesTotal,
		transportRequestsTotal,
		transportRetriesTotal,
		socketReconnectsTotal,
		resultsFetchesTotal,
		handlerPanicsTotal,
	)
}

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() {
	analysisStartedTotal.Inc()
}

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() {
	analysisCompletedTotal.Inc()
}

// IncAnalysisFailed increments the failed counter.
func IncAnalysisFailed() {
	analysisFailedTotal.Inc()
}

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// IncUpdate counts a reconcile outcome ("applied", "ignored") per source.
func IncUpdate(source, outcome string) {
	updatesTotal.WithLabelValues(source, outcome).Inc()
}

// IncTransportRequest counts one HTTP attempt; code is "ok" or an error code.
func IncTransportRequest(method, code string) {
	transportRequestsTotal.WithLabelValues(method, code).Inc()
}

// IncTransportRetry counts one retried attempt.
func IncTransportRetry() {
	transportRetriesTotal.Inc()
}

// IncSocketReconnect counts one reconnect attempt.
func IncSocketReconnect() {
	socketReconnectsTotal.Inc()
}

// IncResultsFetch counts a fetcher lookup ("cache_hit", "fetched", "error").
func IncResultsFetch(outcome string) {
	resultsFetchesTotal.WithLabelValues(outcome).Inc()
}

// IncHandlerPanic counts a recovered panic on route.
func IncHandlerPanic(route string) {
	handlerPanicsTotal.WithLabelValues(route).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
