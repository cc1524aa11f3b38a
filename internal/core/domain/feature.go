package domain

import (
	"time"

	"github.com/samirrijal/shotengai/internal/core/geometry"
)

// Attributes is a feature's attribute bag (name_en, name_jp, status, covered, ...).
// Values are scalars: string, float64, bool or nil.
type Attributes map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// String returns the attribute as a string, or "" when missing or not a string.
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Feature is one shopping-street corridor. ID is empty until the store has
// accepted the first create.
type Feature struct {
	ID         string             `json:"id,omitempty"`
	Attributes Attributes         `json:"attributes"`
	Geometry   geometry.MultiLine `json:"geometry"`
	UpdatedAt  time.Time          `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the feature.
func (f Feature) Clone() Feature {
	return Feature{
		ID:         f.ID,
		Attributes: f.Attributes.Clone(),
		Geometry:   f.Geometry.Clone(),
		UpdatedAt:  f.UpdatedAt,
	}
}

// DisplayName mirrors what the map card shows for a feature.
func (f Feature) DisplayName() string {
	if n := f.Attributes.String("name_en"); n != "" {
		return n
	}
	if n := f.Attributes.String("name_jp"); n != "" {
		return n
	}
	return "Unnamed Shotengai"
}

// ServerAck is what the store returns for a successful create or update.
type ServerAck struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredFeature is a row of the store's read path: attributes plus the
// geometry as GeoJSON text.
type StoredFeature struct {
	ID          string     `json:"id"`
	Attributes  Attributes `json:"attributes"`
	GeometryGeo []byte     `json:"geometry"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FeatureEventType names a change applied by the store.
type FeatureEventType string

const (
	FeatureCreated         FeatureEventType = "created"
	FeatureUpdated         FeatureEventType = "updated"
	FeatureGeometryUpdated FeatureEventType = "geometry_updated"
	FeatureDeleted         FeatureEventType = "deleted"
	// FeatureDerived follows a background write of length_m and slug.
	FeatureDerived FeatureEventType = "derived"
)

// FeatureEvent is broadcast after the store commits a write.
type FeatureEvent struct {
	Type      FeatureEventType `json:"type"`
	FeatureID string           `json:"feature_id"`
	At        time.Time        `json:"at"`
}

// NewFeatureDefaults are merged under caller attributes when a drawn line is
// saved for the first time.
func NewFeatureDefaults() Attributes {
	return Attributes{
		"name_en": "New Shotengai",
		"status":  "planned",
	}
}
