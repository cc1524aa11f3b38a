package geometry

import (
	"log/slog"
	"math"

	"github.com/paulmach/orb"
)

// FixTransposed swaps vertices that look like (lat, lon) pairs: the first value
// fits in [-90, 90] while the second does not. It cannot detect a transposed
// pair when both values are within ±90, so it is only a data-quality guard and
// callers must opt in. Every swap is logged. The input is not modified.
func FixTransposed(g LineGeometry, log *slog.Logger) (LineGeometry, int) {
	if log == nil {
		log = slog.Default()
	}
	swapped := 0
	fix := func(ls orb.LineString) orb.LineString {
		out := make(orb.LineString, len(ls))
		for i, p := range ls {
			if math.Abs(p[0]) <= 90 && math.Abs(p[1]) > 90 {
				log.Warn("swapping transposed coordinate", "vertex", i, "lon", p[0], "lat", p[1])
				p = orb.Point{p[1], p[0]}
				swapped++
			}
			out[i] = p
		}
		return out
	}

	switch v := g.(type) {
	case SingleLine:
		return SingleLine(fix(orb.LineString(v))), swapped
	case MultiLine:
		out := make(MultiLine, len(v))
		for i, seg := range v {
			out[i] = fix(seg)
		}
		return out, swapped
	}
	return g, 0
}
