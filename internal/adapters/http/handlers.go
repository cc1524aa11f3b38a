package http

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// upsertRequest is the body of the upsert RPC. A missing or empty p_id
// creates a new feature.
type upsertRequest struct {
	ID      *string           `json:"p_id"`
	GeomWKT string            `json:"p_geom_wkt"`
	Props   domain.Attributes `json:"p_props"`
}

// updateGeomRequest is the body of the geometry-only RPC.
type updateGeomRequest struct {
	ID      string `json:"p_id"`
	GeomWKT string `json:"p_geom_wkt"`
}

// FeatureStats is the response of /v1/features/stats.
type FeatureStats struct {
	Features int `json:"features"`
}

// ListFeaturesHandler returns stored features as a GeoJSON FeatureCollection,
// ordered by id and paginated with offset/limit.
func ListFeaturesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := deps.Features.ListAll(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}

		pg := parsePagination(c)
		rows = page(rows, &pg)

		fc := geojson.NewFeatureCollection()
		for _, row := range rows {
			f, err := toGeoJSONFeature(row)
			if err != nil {
				LoggerFromCtx(c.UserContext()).Warn("skipping feature with unreadable geometry",
					"id", row.ID, "error", err)
				continue
			}
			fc.Append(f)
		}

		SetLinkHeaders(c, pg)
		return c.JSON(fc)
	}
}

// GetFeatureHandler returns one feature as a GeoJSON Feature.
func GetFeatureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		row, err := deps.Features.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		f, err := toGeoJSONFeature(*row)
		if err != nil {
			return errInternal(c, "stored geometry is unreadable")
		}
		return c.JSON(f)
	}
}

// FeatureStatsHandler returns the number of stored features.
func FeatureStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := deps.Features.Count(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		c.Set(fiber.HeaderCacheControl, "public, max-age=60")
		return c.JSON(FeatureStats{Features: n})
	}
}

// UpsertFeatureHandler creates or replaces a feature from EWKT geometry and
// an attribute bag. It answers with the server ack.
func UpsertFeatureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req upsertRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if strings.TrimSpace(req.GeomWKT) == "" {
			return errBadRequest(c, "p_geom_wkt is required")
		}

		ack, err := deps.Features.Upsert(c.UserContext(), req.ID, req.GeomWKT, req.Props)
		if err != nil {
			return writeError(c, err)
		}

		status := fiber.StatusOK
		if req.ID == nil || *req.ID == "" {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(ack)
	}
}

// UpdateFeatureGeometryHandler replaces only the geometry of a feature.
func UpdateFeatureGeometryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req updateGeomRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.ID == "" || strings.TrimSpace(req.GeomWKT) == "" {
			return errBadRequest(c, "p_id and p_geom_wkt are required")
		}

		if err := deps.Features.UpdateGeometry(c.UserContext(), req.ID, req.GeomWKT); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteFeatureHandler removes a feature.
func DeleteFeatureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Features.Delete(c.UserContext(), c.Params("id")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// toGeoJSONFeature turns a stored row into a GeoJSON Feature whose
// properties are the attribute bag plus the id.
func toGeoJSONFeature(row domain.StoredFeature) (*geojson.Feature, error) {
	g, err := geojson.UnmarshalGeometry(row.GeometryGeo)
	if err != nil {
		return nil, err
	}
	f := geojson.NewFeature(g.Geometry())
	f.ID = row.ID
	for k, v := range row.Attributes {
		f.Properties[k] = v
	}
	f.Properties["id"] = row.ID
	return f, nil
}

// LegacyDeleteHandler serves the PostgREST-style "DELETE ?id=eq.<id>".
func LegacyDeleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := strings.CutPrefix(c.Query("id"), "eq.")
		if !ok || id == "" {
			return errBadRequest(c, "id=eq.<id> filter is required")
		}
		if err := deps.Features.Delete(c.UserContext(), id); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
