package geo

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultPrecision is the geohash precision used for edge buckets
// (cells of roughly 1.2 x 0.6 km).
const DefaultPrecision = 6

// Candidate is a line found near a query point.
type Candidate struct {
	Index    int       // position of the line in the indexed slice
	Segment  int       // closest segment of the line
	Distance float64   // planar distance in degrees
	Point    orb.Point // projection of the query point on the line
}

// IndexStats tracks index usage.
type IndexStats struct {
	Queries   uint64
	FullScans uint64
}

// EdgeIndex buckets line geometries by the geohash cells they cross.
// It is immutable after construction and safe for concurrent queries.
type EdgeIndex struct {
	precision uint
	cellLat   float64
	cellLon   float64
	lines     []orb.LineString
	cells     map[string][]int

	queries   atomic.Uint64
	fullScans atomic.Uint64
}

// NewEdgeIndex indexes lines at the given geohash precision.
func NewEdgeIndex(lines []orb.LineString, precision uint) *EdgeIndex {
	if precision == 0 || precision > 12 {
		precision = DefaultPrecision
	}

	idx := &EdgeIndex{
		precision: precision,
		lines:     lines,
		cells:     make(map[string][]int),
	}
	idx.cellLat, idx.cellLon = cellSize(lines, precision)

	for i, ls := range lines {
		seen := make(map[string]struct{})
		for _, p := range idx.samples(ls) {
			hash := geohash.EncodeWithPrecision(p[1], p[0], precision)
			if _, ok := seen[hash]; ok {
				continue
			}
			seen[hash] = struct{}{}
			idx.cells[hash] = append(idx.cells[hash], i)
		}
	}

	return idx
}

// cellSize returns the cell dimensions in degrees near the data.
func cellSize(lines []orb.LineString, precision uint) (float64, float64) {
	lat, lon := 0.0, 0.0
	for _, ls := range lines {
		if len(ls) > 0 {
			lon, lat = ls[0][0], ls[0][1]
			break
		}
	}
	box := geohash.BoundingBox(geohash.EncodeWithPrecision(lat, lon, precision))
	return box.MaxLat - box.MinLat, box.MaxLng - box.MinLng
}

// samples densifies a line so that every crossed cell gets at least one point.
func (idx *EdgeIndex) samples(ls orb.LineString) []orb.Point {
	if len(ls) < 2 {
		return ls
	}
	out := make([]orb.Point, 0, len(ls))
	for i := 0; i < len(ls)-1; i++ {
		a, b := ls[i], ls[i+1]
		steps := math.Max(math.Abs(b[0]-a[0])/idx.cellLon, math.Abs(b[1]-a[1])/idx.cellLat)
		n := int(math.Ceil(steps*2)) + 1
		for s := 0; s < n; s++ {
			t := float64(s) / float64(n)
			out = append(out, orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])})
		}
	}
	return append(out, ls[len(ls)-1])
}

// Len returns the number of indexed lines.
func (idx *EdgeIndex) Len() int {
	return len(idx.lines)
}

// Stats returns usage counters.
func (idx *EdgeIndex) Stats() IndexStats {
	return IndexStats{Queries: idx.queries.Load(), FullScans: idx.fullScans.Load()}
}

// Nearest returns up to k lines within radius degrees of p, closest first.
// k <= 0 returns every line within radius.
func (idx *EdgeIndex) Nearest(p orb.Point, radius float64, k int) []Candidate {
	idx.queries.Add(1)

	var ids []int
	if radius > math.Min(idx.cellLat, idx.cellLon) {
		// the 3x3 neighbourhood would not cover the radius
		idx.fullScans.Add(1)
		ids = make([]int, len(idx.lines))
		for i := range ids {
			ids[i] = i
		}
	} else {
		ids = idx.nearbyIDs(p)
	}

	result := make([]Candidate, 0, len(ids))
	for _, i := range ids {
		d, seg := planar.DistanceFromWithIndex(idx.lines[i], p)
		if d > radius {
			continue
		}
		result = append(result, Candidate{
			Index:    i,
			Segment:  seg,
			Distance: d,
			Point:    ProjectOnLine(idx.lines[i], seg, p),
		})
	}

	sort.Slice(result, func(a, b int) bool {
		if result[a].Distance != result[b].Distance {
			return result[a].Distance < result[b].Distance
		}
		return result[a].Index < result[b].Index
	})
	if k > 0 && len(result) > k {
		result = result[:k]
	}
	return result
}

func (idx *EdgeIndex) nearbyIDs(p orb.Point) []int {
	center := geohash.EncodeWithPrecision(p[1], p[0], idx.precision)
	hashes := append([]string{center}, geohash.Neighbors(center)...)

	seen := make(map[int]struct{})
	ids := make([]int, 0, 16)
	for _, h := range hashes {
		for _, i := range idx.cells[h] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			ids = append(ids, i)
		}
	}
	return ids
}
