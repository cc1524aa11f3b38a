package http

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/geometry"
)

// jsonScalar passes arbitrary JSON values (attribute bags, GeoJSON) through
// unchanged.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize:   func(v interface{}) interface{} { return v },
})

// buildSchema creates the read-only GraphQL schema over the feature store.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	featureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Shotengai",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String, Description: "name_en, then name_jp, then a placeholder"},
			"name_en":    &graphql.Field{Type: graphql.String},
			"name_jp":    &graphql.Field{Type: graphql.String},
			"status":     &graphql.Field{Type: graphql.String},
			"slug":       &graphql.Field{Type: graphql.String},
			"length_m":   &graphql.Field{Type: graphql.Float},
			"segments":   &graphql.Field{Type: graphql.Int},
			"vertices":   &graphql.Field{Type: graphql.Int},
			"updated_at": &graphql.Field{Type: graphql.String},
			"attributes": &graphql.Field{Type: jsonScalar},
			"geometry":   &graphql.Field{Type: jsonScalar, Description: "GeoJSON MultiLineString"},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"features": &graphql.Field{
				Type:        graphql.NewList(featureType),
				Description: "All shotengai, ordered by id",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					rows, err := deps.Features.ListAll(p.Context)
					if err != nil {
						return nil, err
					}
					pg := Pagination{Offset: p.Args["offset"].(int), Limit: p.Args["limit"].(int)}
					if pg.Offset < 0 {
						pg.Offset = 0
					}
					if pg.Limit <= 0 || pg.Limit > maxPageLimit {
						pg.Limit = defaultPageLimit
					}

					var out []map[string]interface{}
					for _, row := range page(rows, &pg) {
						out = append(out, featureFields(row))
					}
					return out, nil
				},
			},
			"feature": &graphql.Field{
				Type:        featureType,
				Description: "Get a shotengai by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					row, err := deps.Features.Get(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return featureFields(*row), nil
				},
			},
			"featureCount": &graphql.Field{
				Type:        graphql.Int,
				Description: "Number of stored shotengai",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Features.Count(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// featureFields flattens a stored row into the GraphQL Shotengai shape.
func featureFields(row domain.StoredFeature) map[string]interface{} {
	f := domain.Feature{ID: row.ID, Attributes: row.Attributes}
	m := map[string]interface{}{
		"id":         row.ID,
		"name":       f.DisplayName(),
		"name_en":    row.Attributes.String("name_en"),
		"name_jp":    row.Attributes.String("name_jp"),
		"status":     row.Attributes.String("status"),
		"slug":       row.Attributes.String("slug"),
		"attributes": map[string]any(row.Attributes),
	}
	if l, ok := row.Attributes["length_m"].(float64); ok {
		m["length_m"] = l
	}
	if !row.UpdatedAt.IsZero() {
		m["updated_at"] = row.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if len(row.GeometryGeo) > 0 {
		m["geometry"] = json.RawMessage(row.GeometryGeo)
		if g, err := geometry.FromGeoJSONLike(row.GeometryGeo); err == nil {
			if ml, err := geometry.Normalize(g); err == nil {
				m["segments"] = len(ml)
				m["vertices"] = ml.VertexCount()
			}
		}
	}
	return m
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
