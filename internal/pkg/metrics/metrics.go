package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shotengai",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shotengai",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Sync / editing metrics
	SyncWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "sync",
		Name:      "writes_total",
		Help:      "Remote store writes issued by the sync client, by operation and result",
	}, []string{"op", "result"})

	SyncWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shotengai",
		Subsystem: "sync",
		Name:      "write_duration_seconds",
		Help:      "Latency of remote store writes",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})

	SyncQueuedWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "sync",
		Name:      "queued_writes_total",
		Help:      "Writes that waited for an earlier write on the same feature to settle",
	})

	EditSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "editor",
		Name:      "sessions_total",
		Help:      "Edit sessions by how they ended",
	}, []string{"outcome"})

	ActiveEditSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "editor",
		Name:      "active_sessions",
		Help:      "Edit sessions currently drawing, editing or saving",
	})

	SnapHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "editor",
		Name:      "snap_hits_total",
		Help:      "Vertices placed on an existing vertex by snapping",
	})

	FeatureEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Feature change events published to NATS",
	}, []string{"type"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotengai",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "db",
		Name:      "pool_empty_acquires",
		Help:      "Acquires that had to wait for a new connection, as reported by the pool",
	})

	DBPoolAcquires = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotengai",
		Subsystem: "db",
		Name:      "pool_acquires",
		Help:      "Successful acquires from the pool, as reported by the pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	// Matched structurally so this package does not import pgxpool.
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
		EmptyAcquireCount() int64
		AcquireCount() int64
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
		DBPoolEmptyAcquires.Set(float64(s.EmptyAcquireCount()))
		DBPoolAcquires.Set(float64(s.AcquireCount()))
	}
}
