package ports

import (
	"context"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// RemoteStore is the store contract the editing engine depends on. Geometry
// travels as EWKT ("SRID=4326;MULTILINESTRING(...)") on writes and as
// GeoJSON on reads.
type RemoteStore interface {
	// Upsert creates a feature when id is nil, otherwise replaces its
	// attributes and geometry.
	Upsert(ctx context.Context, id *string, geometryEWKT string, attrs domain.Attributes) (domain.ServerAck, error)
	UpdateGeometry(ctx context.Context, id string, geometryEWKT string) error
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]domain.StoredFeature, error)
}

// FeatureRepository persists features in PostGIS.
type FeatureRepository interface {
	// Upsert returns the (possibly new) id and the stamped update time.
	Upsert(ctx context.Context, id *string, geometryEWKT string, attrs domain.Attributes) (domain.ServerAck, error)
	UpdateGeometry(ctx context.Context, id string, geometryEWKT string) (domain.ServerAck, error)
	// MergeAttributes overlays attrs on the stored attribute bag without
	// touching geometry.
	MergeAttributes(ctx context.Context, id string, attrs domain.Attributes) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.StoredFeature, error)
	ListAll(ctx context.Context) ([]domain.StoredFeature, error)
	Count(ctx context.Context) (int, error)
}
