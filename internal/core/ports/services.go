package ports

import (
	"context"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// EventPublisher publishes feature change events to a message broker.
type EventPublisher interface {
	PublishFeatureEvent(ctx context.Context, event domain.FeatureEvent) error
}

// EventSubscriber subscribes to feature change events.
type EventSubscriber interface {
	SubscribeFeatureEvents(ctx context.Context, handler func(ctx context.Context, event domain.FeatureEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// DerivationScheduler starts the background job that recomputes derived
// attributes (length_m, slug) after a write.
type DerivationScheduler interface {
	ScheduleDerivation(ctx context.Context, featureID string) error
}

// Authorizer answers whether a bearer credential may write. Authentication
// itself lives outside this service.
type Authorizer interface {
	CanWrite(token string) bool
}
