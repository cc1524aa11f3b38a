package geospatial

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance is Haversine over [lon, lat] points.
func Distance(a, b orb.Point) float64 {
	return Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// LineLength sums the great-circle length of every segment in meters. Gaps
// between segments are not counted.
func LineLength(m orb.MultiLineString) float64 {
	var total float64
	for _, ls := range m {
		for i := 1; i < len(ls); i++ {
			total += Distance(ls[i-1], ls[i])
		}
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
