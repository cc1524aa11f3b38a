package geometry

import "github.com/paulmach/orb"

// Append returns a new MultiLine holding existing's segments followed by seg.
// Coincident endpoints are not merged: a branch that touches an existing arc
// stays a separate segment.
func Append(existing MultiLine, seg SingleLine) MultiLine {
	out := make(MultiLine, 0, len(existing)+1)
	for _, s := range existing {
		out = append(out, append(orb.LineString(nil), s...))
	}
	return append(out, append(orb.LineString(nil), seg...))
}
