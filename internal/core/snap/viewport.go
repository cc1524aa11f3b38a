package snap

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	earthRadiusMeters = 6378137.0
	defaultTileSize   = 512.0
)

// Viewport is a Web-Mercator map view: the lon/lat at the center of a
// Width x Height pixel canvas at a fractional zoom level. Pixel y grows
// downward.
type Viewport struct {
	Center   orb.Point `json:"center"`
	Zoom     float64   `json:"zoom"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	TileSize float64   `json:"tile_size,omitempty"`
}

// metersPerPixel at the viewport's zoom.
func (v Viewport) metersPerPixel() float64 {
	ts := v.TileSize
	if ts <= 0 {
		ts = defaultTileSize
	}
	return 2 * math.Pi * earthRadiusMeters / (ts * math.Exp2(v.Zoom))
}

// Project converts lon/lat to canvas pixels.
func (v Viewport) Project(p orb.Point) orb.Point {
	m := project.WGS84.ToMercator(p)
	c := project.WGS84.ToMercator(v.Center)
	r := v.metersPerPixel()
	return orb.Point{
		(m[0]-c[0])/r + v.Width/2,
		(c[1]-m[1])/r + v.Height/2,
	}
}

// Unproject converts canvas pixels to lon/lat.
func (v Viewport) Unproject(px orb.Point) orb.Point {
	c := project.WGS84.ToMercator(v.Center)
	r := v.metersPerPixel()
	m := orb.Point{
		c[0] + (px[0]-v.Width/2)*r,
		c[1] - (px[1]-v.Height/2)*r,
	}
	return project.Mercator.ToWGS84(m)
}

// Valid reports whether the viewport can be used for projection.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0 && v.Zoom >= 0 && v.Zoom <= 24 &&
		v.Center.Lon() >= -180 && v.Center.Lon() <= 180 &&
		v.Center.Lat() >= -85.06 && v.Center.Lat() <= 85.06
}
