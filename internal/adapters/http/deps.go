package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/shotengai/internal/adapters/postgres"
	"github.com/samirrijal/shotengai/internal/adapters/valkey"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Features   *usecases.FeatureService
	Authorizer ports.Authorizer
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache

	// FixTransposed and WriteTimeout configure the SyncClient behind each
	// websocket edit session.
	FixTransposed bool
	WriteTimeout  time.Duration

	// OpenAPIPath is served at /docs/openapi.yaml.
	OpenAPIPath string
}
