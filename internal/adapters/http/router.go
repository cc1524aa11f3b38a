package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/shotengai/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, RPC, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics; pool gauges are sampled on scrape.
	app.Use(metrics.Middleware())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		if deps.DB != nil {
			metrics.UpdateDBPoolMetrics(deps.DB.Pool.Stat())
		}
		return c.Next()
	}, metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 600 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", Version)
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(legacyRoutes))

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	write := WriteAuthMiddleware(deps.Authorizer)

	// Feature store contract
	v1 := app.Group("/v1")
	v1.Get("/features", timeout.NewWithContext(ListFeaturesHandler(deps), requestTimeout))
	v1.Get("/features/stats", timeout.NewWithContext(FeatureStatsHandler(deps), requestTimeout))
	v1.Get("/features/:id", timeout.NewWithContext(GetFeatureHandler(deps), requestTimeout))
	v1.Delete("/features/:id", write, timeout.NewWithContext(DeleteFeatureHandler(deps), requestTimeout))
	v1.Post("/rpc/upsert_shotengai", write, timeout.NewWithContext(UpsertFeatureHandler(deps), requestTimeout))
	v1.Post("/rpc/update_shotengai_geom", write, timeout.NewWithContext(UpdateFeatureGeometryHandler(deps), requestTimeout))

	// Legacy PostgREST-style paths
	legacy := app.Group("/rest/v1")
	legacy.Get("/v_shotengai_geojson", timeout.NewWithContext(ListFeaturesHandler(deps), requestTimeout))
	legacy.Delete("/shotengai", write, timeout.NewWithContext(LegacyDeleteHandler(deps), requestTimeout))
	legacy.Post("/rpc/upsert_shotengai", write, timeout.NewWithContext(UpsertFeatureHandler(deps), requestTimeout))
	legacy.Post("/rpc/update_shotengai_geom", write, timeout.NewWithContext(UpdateFeatureGeometryHandler(deps), requestTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.OpenAPIPath)

	// WebSockets
	app.Use("/ws", WebSocketUpgrade(deps.Authorizer))
	app.Get("/ws/edit", websocket.New(EditSessionHandler(deps)))
	app.Get("/ws/changes", websocket.New(ChangeFeedHandler(deps.NATS)))
}
