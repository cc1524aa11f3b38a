package main

import (
	"io"
	"log/slog"
	"testing"
)

const collection = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name_en": "Tenjinbashi"},
     "geometry": {"type": "LineString", "coordinates": [[135.5, 34.69], [135.501, 34.69]]}},
    {"type": "Feature", "id": "f-2", "properties": {"name_jp": "心斎橋筋"},
     "geometry": {"type": "MultiLineString", "coordinates": [[[135.6, 34.7], [135.6, 34.701]], [[135.61, 34.7], [135.61, 34.701]]]}},
    {"type": "Feature", "properties": {"id": "f-3"},
     "geometry": {"type": "LineString", "coordinates": [[34.69, 135.5], [34.691, 135.5]]}},
    {"type": "Feature", "properties": {},
     "geometry": {"type": "Point", "coordinates": [135.5, 34.69]}},
    {"type": "Feature", "properties": {},
     "geometry": {"type": "LineString", "coordinates": [[135.5, 34.69]]}}
  ]
}`

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDecodeCollection(t *testing.T) {
	features, skipped, err := decodeCollection([]byte(collection), false, quiet)
	if err != nil {
		t.Fatal(err)
	}
	// The transposed feature is out of range without the fix.
	if len(features) != 2 || skipped != 3 {
		t.Fatalf("got %d features, %d skipped; want 2, 3", len(features), skipped)
	}

	a, b := features[0], features[1]
	if a.ID != "" || a.Attributes.String("name_en") != "Tenjinbashi" || len(a.Geometry) != 1 {
		t.Errorf("unexpected first feature: %+v", a)
	}
	if b.ID != "f-2" || len(b.Geometry) != 2 {
		t.Errorf("unexpected second feature: %+v", b)
	}
}

func TestDecodeCollection_FixTransposed(t *testing.T) {
	features, skipped, err := decodeCollection([]byte(collection), true, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 3 || skipped != 2 {
		t.Fatalf("got %d features, %d skipped; want 3, 2", len(features), skipped)
	}
	c := features[2]
	if c.ID != "f-3" {
		t.Errorf("expected id from properties, got %q", c.ID)
	}
	if _, ok := c.Attributes["id"]; ok {
		t.Error("id property should not be stored as an attribute")
	}
	if p := c.Geometry[0][0]; p[0] != 135.5 || p[1] != 34.69 {
		t.Errorf("expected swapped coordinate, got %v", p)
	}
}

func TestDecodeCollection_NotACollection(t *testing.T) {
	if _, _, err := decodeCollection([]byte(`{"type":`), false, quiet); err == nil {
		t.Fatal("expected error")
	}
}
