package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/geometry"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/pkg/geospatial"
)

// DeriveActivities holds the activity implementations for the derivation workflow.
type DeriveActivities struct {
	Features ports.FeatureRepository
	// Events is optional.
	Events ports.EventPublisher
}

// LoadFeature returns the stored feature, or nil when it no longer exists.
func (a *DeriveActivities) LoadFeature(ctx context.Context, id string) (*domain.StoredFeature, error) {
	f, err := a.Features.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load feature %s: %w", id, err)
	}
	return f, nil
}

// ComputeDerived returns length_m (meters, one decimal) and slug.
func (a *DeriveActivities) ComputeDerived(ctx context.Context, f domain.StoredFeature) (domain.Attributes, error) {
	g, err := geometry.FromGeoJSONLike(f.GeometryGeo)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("feature %s has unreadable geometry", f.ID), "InvalidGeometry", err)
	}
	m, err := geometry.Normalize(g)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("feature %s has unsupported geometry", f.ID), "InvalidGeometry", err)
	}

	length := math.Round(geospatial.LineLength(orb.MultiLineString(m))*10) / 10
	out := domain.Attributes{"length_m": length}
	if slug := domain.SlugFor(f.Attributes); slug != "" {
		out["slug"] = slug
	}
	return out, nil
}

// MergeAttributes writes the derived attributes back.
func (a *DeriveActivities) MergeAttributes(ctx context.Context, id string, attrs domain.Attributes) error {
	err := a.Features.MergeAttributes(ctx, id, attrs)
	if errors.Is(err, domain.ErrNotFound) {
		slog.InfoContext(ctx, "feature deleted before derived attributes were stored", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("merge attributes %s: %w", id, err)
	}
	if a.Events != nil {
		evt := domain.FeatureEvent{Type: domain.FeatureDerived, FeatureID: id, At: time.Now().UTC()}
		if err := a.Events.PublishFeatureEvent(ctx, evt); err != nil {
			slog.WarnContext(ctx, "publish derived event failed", "id", id, "error", err)
		}
	}
	return nil
}
