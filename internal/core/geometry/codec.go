// Package geometry converts between in-memory line geometry, the canonical
// multi-segment form and the WKT / GeoJSON wire formats.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// SRID is the only coordinate reference system the store accepts (WGS 84).
const SRID = 4326

var (
	ErrUnsupportedGeometry  = errors.New("unsupported geometry: only LineString and MultiLineString are accepted")
	ErrInsufficientVertices = errors.New("a line needs at least 2 vertices")
	ErrEmptyMultiLine       = errors.New("multi-line geometry has no segments")
	ErrInvalidCoordinate    = errors.New("coordinate out of range")
)

// LineGeometry is either a SingleLine or a MultiLine.
type LineGeometry interface {
	Orb() orb.Geometry
	lineGeometry()
}

// SingleLine is one ordered vertex list, lon/lat.
type SingleLine orb.LineString

// MultiLine is an ordered list of segments. It is the canonical wire form.
type MultiLine orb.MultiLineString

func (SingleLine) lineGeometry() {}
func (MultiLine) lineGeometry()  {}

// Orb returns the value as an orb.LineString.
func (l SingleLine) Orb() orb.Geometry { return orb.LineString(l) }

// Orb returns the value as an orb.MultiLineString.
func (m MultiLine) Orb() orb.Geometry { return orb.MultiLineString(m) }

// Validate checks the vertex count and coordinate ranges of a single line.
func (l SingleLine) Validate() error {
	if len(l) < 2 {
		return ErrInsufficientVertices
	}
	for _, p := range l {
		if err := validCoordinate(p); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the multi-line has at least one segment and that every
// segment is a valid SingleLine.
func (m MultiLine) Validate() error {
	if len(m) == 0 {
		return ErrEmptyMultiLine
	}
	for i, seg := range m {
		if err := SingleLine(seg).Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return nil
}

// VertexCount returns the total number of vertices over all segments.
func (m MultiLine) VertexCount() int {
	n := 0
	for _, seg := range m {
		n += len(seg)
	}
	return n
}

// Clone returns a deep copy.
func (m MultiLine) Clone() MultiLine {
	if m == nil {
		return nil
	}
	return MultiLine(orb.MultiLineString(m).Clone())
}

func validCoordinate(p orb.Point) error {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinate)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, lon, lat)
	}
	return nil
}

// Normalize wraps a SingleLine as a one-segment MultiLine and returns a
// MultiLine unchanged.
func Normalize(g LineGeometry) (MultiLine, error) {
	switch v := g.(type) {
	case SingleLine:
		return MultiLine{orb.LineString(v)}, nil
	case MultiLine:
		return v, nil
	default:
		return nil, ErrUnsupportedGeometry
	}
}

// FromOrb narrows an arbitrary orb geometry to a LineGeometry.
func FromOrb(g orb.Geometry) (LineGeometry, error) {
	switch v := g.(type) {
	case orb.LineString:
		return SingleLine(v), nil
	case orb.MultiLineString:
		return MultiLine(v), nil
	default:
		return nil, ErrUnsupportedGeometry
	}
}

// ToWKT emits the canonical MULTILINESTRING text without a CRS prefix.
func ToWKT(g LineGeometry) (string, error) {
	m, err := Normalize(g)
	if err != nil {
		return "", err
	}
	if err := m.Validate(); err != nil {
		return "", err
	}
	return wkt.MarshalString(orb.MultiLineString(m)), nil
}

// EWKT prepends the SRID designator the store expects on writes.
func EWKT(wktText string) string {
	return fmt.Sprintf("SRID=%d;%s", SRID, wktText)
}

// ParseWKT reads a LINESTRING or MULTILINESTRING, optionally prefixed with
// "SRID=4326;", and returns its canonical form. Any other SRID is rejected.
func ParseWKT(text string) (MultiLine, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToUpper(text), "SRID=") {
		prefix, rest, ok := strings.Cut(text, ";")
		if !ok {
			return nil, fmt.Errorf("malformed EWKT prefix %q", text)
		}
		if prefix[len("SRID="):] != fmt.Sprint(SRID) {
			return nil, fmt.Errorf("unsupported SRID %q, expected %d", prefix[len("SRID="):], SRID)
		}
		text = rest
	}
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("parse wkt: %w", err)
	}
	lg, err := FromOrb(g)
	if err != nil {
		return nil, err
	}
	m, err := Normalize(lg)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// FromGeoJSONLike decodes a GeoJSON LineString or MultiLineString geometry
// object. Any other type fails with ErrUnsupportedGeometry.
func FromGeoJSONLike(data []byte) (LineGeometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if probe.Type != "LineString" && probe.Type != "MultiLineString" {
		return nil, ErrUnsupportedGeometry
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return FromGeoJSONGeometry(g)
}

// FromGeoJSONGeometry narrows an already decoded geojson geometry. Vertex
// counts are checked here; coordinate ranges are left to Validate so a
// transposed read can still be repaired by FixTransposed.
func FromGeoJSONGeometry(g *geojson.Geometry) (LineGeometry, error) {
	if g == nil {
		return nil, ErrUnsupportedGeometry
	}
	lg, err := FromOrb(g.Geometry())
	if err != nil {
		return nil, err
	}
	if err := checkShape(lg); err != nil {
		return nil, err
	}
	return lg, nil
}

func checkShape(g LineGeometry) error {
	m, err := Normalize(g)
	if err != nil {
		return err
	}
	if len(m) == 0 {
		return ErrEmptyMultiLine
	}
	for i, seg := range m {
		if len(seg) < 2 {
			return fmt.Errorf("segment %d: %w", i, ErrInsufficientVertices)
		}
	}
	return nil
}

// ToGeoJSONLike wraps the canonical form in a GeoJSON geometry object.
func ToGeoJSONLike(g LineGeometry) (*geojson.Geometry, error) {
	m, err := Normalize(g)
	if err != nil {
		return nil, err
	}
	return geojson.NewGeometry(orb.MultiLineString(m)), nil
}

// Flatten concatenates every segment into one editable vertex list. Segment
// boundaries are not kept.
func Flatten(m MultiLine) SingleLine {
	out := make(SingleLine, 0, m.VertexCount())
	for _, seg := range m {
		out = append(out, seg...)
	}
	return out
}
