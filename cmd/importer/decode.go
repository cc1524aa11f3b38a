package main

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/geometry"
)

// decodeCollection turns a FeatureCollection into features ready to save.
// Features whose geometry is not a valid line are skipped and counted.
func decodeCollection(data []byte, fixTransposed bool, log *slog.Logger) ([]domain.Feature, int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode feature collection: %w", err)
	}

	out := make([]domain.Feature, 0, len(fc.Features))
	skipped := 0
	for i, gf := range fc.Features {
		f, err := decodeFeature(gf, fixTransposed, log)
		if err != nil {
			log.Warn("skipping feature", "index", i, "error", err)
			skipped++
			continue
		}
		out = append(out, f)
	}
	return out, skipped, nil
}

func decodeFeature(gf *geojson.Feature, fixTransposed bool, log *slog.Logger) (domain.Feature, error) {
	g, err := geometry.FromOrb(gf.Geometry)
	if err != nil {
		return domain.Feature{}, err
	}
	if fixTransposed {
		g, _ = geometry.FixTransposed(g, log)
	}
	m, err := geometry.Normalize(g)
	if err != nil {
		return domain.Feature{}, err
	}
	if err := m.Validate(); err != nil {
		return domain.Feature{}, err
	}

	attrs := domain.Attributes{}
	for k, v := range gf.Properties {
		attrs[k] = v
	}

	id, _ := attrs["id"].(string)
	if id == "" {
		id, _ = gf.ID.(string)
	}
	delete(attrs, "id")
	return domain.Feature{ID: id, Attributes: attrs, Geometry: m}, nil
}
