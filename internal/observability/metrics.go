package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Tick results.
const (
	TickOK        = "ok"
	TickFailed    = "failed"
	TickSkipped   = "skipped"
	TickDiscarded = "discarded"
	TickStopped   = "stopped"
)

// Send results.
const (
	SendOK       = "ok"
	SendFailed   = "failed"
	SendRejected = "rejected"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinderchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the dev backend.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kinderchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	syncTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinderchat_sync_ticks_total",
			Help: "Total number of sync ticks by result.",
		},
		[]string{"result"},
	)
	syncReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinderchat_sync_reconcile_total",
			Help: "Total number of reconciles, split by whether the message list changed.",
		},
		[]string{"changed"},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinderchat_sends_total",
			Help: "Total number of message sends by result.",
		},
		[]string{"result"},
	)
	messagesStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kinderchat_messages_stored_total",
			Help: "Total number of messages persisted by the dev backend.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		syncTicksTotal,
		syncReconcileTotal,
		sendsTotal,
		messagesStoredTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncTick(result string) {
	syncTicksTotal.WithLabelValues(result).Inc()
}

func ObserveReconcile(changed bool) {
	syncReconcileTotal.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

func IncSend(result string) {
	sendsTotal.WithLabelValues(result).Inc()
}

func IncMessageStored() {
	messagesStoredTotal.Inc()
}
