package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Distance returns the great-circle distance in meters between two lon/lat points.
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// Length returns the great-circle length of a line in meters.
func Length(ls orb.LineString) float64 {
	return geo.LengthHaversine(ls)
}

// ProjectOnSegment returns the closest point to p on segment [a, b] in planar
// (degree) space.
func ProjectOnSegment(a, b, p orb.Point) orb.Point {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}

	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

// ProjectOnLine projects p onto segment idx of ls.
func ProjectOnLine(ls orb.LineString, idx int, p orb.Point) orb.Point {
	switch {
	case len(ls) == 0:
		return p
	case len(ls) == 1:
		return ls[0]
	case idx < 0:
		idx = 0
	case idx > len(ls)-2:
		idx = len(ls) - 2
	}
	return ProjectOnSegment(ls[idx], ls[idx+1], p)
}
