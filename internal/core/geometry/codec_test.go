package geometry_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/shotengai/internal/core/geometry"
)

func TestToWKT_TwoSegments(t *testing.T) {
	m := geometry.MultiLine{
		{{0, 0}, {1, 1}},
		{{2, 2}, {3, 3}},
	}
	got, err := geometry.ToWKT(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "MULTILINESTRING((0 0,1 1),(2 2,3 3))"; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestToWKT_SingleLineIsWrapped(t *testing.T) {
	got, err := geometry.ToWKT(geometry.SingleLine{{135, 35}, {135.1, 35.2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "MULTILINESTRING((135 35,135.1 35.2))"; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestToWKT_RejectsShortLine(t *testing.T) {
	_, err := geometry.ToWKT(geometry.SingleLine{{1, 1}})
	if !errors.Is(err, geometry.ErrInsufficientVertices) {
		t.Fatalf("expected ErrInsufficientVertices, got %v", err)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []geometry.LineGeometry{
		geometry.SingleLine{{0, 0}, {1, 1}},
		geometry.MultiLine{{{0, 0}, {1, 1}}, {{5, 5}, {6, 6}, {7, 7}}},
	}
	for _, in := range inputs {
		once, err := geometry.Normalize(in)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		twice, err := geometry.Normalize(once)
		if err != nil {
			t.Fatalf("normalize twice: %v", err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("normalize not idempotent: %v vs %v", once, twice)
		}
	}
}

func TestNormalize_Unsupported(t *testing.T) {
	if _, err := geometry.Normalize(nil); !errors.Is(err, geometry.ErrUnsupportedGeometry) {
		t.Fatalf("expected ErrUnsupportedGeometry, got %v", err)
	}
}

func TestGeoJSONRoundTrip(t *testing.T) {
	m := geometry.MultiLine{
		{{135.5012, 34.6687}, {135.5031, 34.6702}, {135.5049, 34.6711}},
		{{135.51, 34.67}, {135.52, 34.68}},
	}
	g, err := geometry.ToGeoJSONLike(m)
	if err != nil {
		t.Fatalf("to geojson: %v", err)
	}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := geometry.FromGeoJSONLike(data)
	if err != nil {
		t.Fatalf("from geojson: %v", err)
	}
	if !reflect.DeepEqual(back, m) {
		t.Errorf("round trip mismatch:\n got  %v\n want %v", back, m)
	}
}

func TestFromGeoJSONLike_LineString(t *testing.T) {
	g, err := geometry.FromGeoJSONLike([]byte(`{"type":"LineString","coordinates":[[139.7,35.6],[139.8,35.7]]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sl, ok := g.(geometry.SingleLine)
	if !ok {
		t.Fatalf("expected SingleLine, got %T", g)
	}
	if len(sl) != 2 || sl[1] != (orb.Point{139.8, 35.7}) {
		t.Errorf("unexpected vertices: %v", sl)
	}
}

func TestFromGeoJSONLike_RejectsOtherTypes(t *testing.T) {
	for _, doc := range []string{
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
	} {
		if _, err := geometry.FromGeoJSONLike([]byte(doc)); !errors.Is(err, geometry.ErrUnsupportedGeometry) {
			t.Errorf("%s: expected ErrUnsupportedGeometry, got %v", doc, err)
		}
	}
}

func TestFromGeoJSONLike_RejectsShortLines(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty line", `{"type":"LineString","coordinates":[]}`, geometry.ErrInsufficientVertices},
		{"one vertex", `{"type":"LineString","coordinates":[[135,35]]}`, geometry.ErrInsufficientVertices},
		{"empty multi", `{"type":"MultiLineString","coordinates":[]}`, geometry.ErrEmptyMultiLine},
		{"short segment", `{"type":"MultiLineString","coordinates":[[[135,35],[135.1,35.1]],[[136,36]]]}`, geometry.ErrInsufficientVertices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := geometry.FromGeoJSONLike([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v (%v)", tt.want, err, g)
			}
		})
	}
}

func TestFromGeoJSONLike_KeepsTransposedForRepair(t *testing.T) {
	g, err := geometry.FromGeoJSONLike([]byte(`{"type":"LineString","coordinates":[[35,135],[35.1,135.1]]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed, swaps := geometry.FixTransposed(g, nil)
	if swaps != 2 {
		t.Fatalf("expected 2 swaps, got %d", swaps)
	}
	m, _ := geometry.Normalize(fixed)
	if err := m.Validate(); err != nil {
		t.Errorf("repaired geometry should validate: %v", err)
	}
}

func TestParseWKT(t *testing.T) {
	m, err := geometry.ParseWKT("SRID=4326;MULTILINESTRING((0 0,1 1),(2 2,3 3))")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(m))
	}

	single, err := geometry.ParseWKT("LINESTRING(10 10,11 11)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(single) != 1 || len(single[0]) != 2 {
		t.Errorf("expected one 2-vertex segment, got %v", single)
	}
}

func TestParseWKT_Rejects(t *testing.T) {
	cases := map[string]string{
		"other srid": "SRID=3857;MULTILINESTRING((0 0,1 1))",
		"point":      "POINT(1 2)",
		"garbage":    "MULTILINESTRING((0 0,",
		"out range":  "MULTILINESTRING((0 0,200 1))",
	}
	for name, in := range cases {
		if _, err := geometry.ParseWKT(in); err == nil {
			t.Errorf("%s: expected error for %q", name, in)
		}
	}
	if _, err := geometry.ParseWKT("POINT(1 2)"); !errors.Is(err, geometry.ErrUnsupportedGeometry) {
		t.Errorf("expected ErrUnsupportedGeometry for point, got %v", err)
	}
}

func TestEWKT(t *testing.T) {
	if got := geometry.EWKT("MULTILINESTRING((0 0,1 1))"); got != "SRID=4326;MULTILINESTRING((0 0,1 1))" {
		t.Errorf("unexpected EWKT: %s", got)
	}
}

func TestFlatten(t *testing.T) {
	m := geometry.MultiLine{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}}
	got := geometry.Flatten(m)
	want := geometry.SingleLine{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFixTransposed(t *testing.T) {
	in := geometry.SingleLine{{35.0, 135.0}, {135.1, 35.1}}
	out, n := geometry.FixTransposed(in, nil)
	if n != 1 {
		t.Fatalf("expected 1 swap, got %d", n)
	}
	got := out.(geometry.SingleLine)
	if got[0] != (orb.Point{135.0, 35.0}) || got[1] != (orb.Point{135.1, 35.1}) {
		t.Errorf("unexpected result: %v", got)
	}
	if in[0] != (orb.Point{35.0, 135.0}) {
		t.Error("input was modified")
	}
}

func TestFixTransposed_CannotSeeSmallValues(t *testing.T) {
	// Both values are within ±90, so a transposition is invisible.
	in := geometry.MultiLine{{{10, 20}, {11, 21}}}
	_, n := geometry.FixTransposed(in, nil)
	if n != 0 {
		t.Errorf("expected no swaps, got %d", n)
	}
}
