package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	// one degree of latitude is ~111.3 km on the haversine sphere
	d := Distance(orb.Point{2.4, 42.0}, orb.Point{2.4, 43.0})
	assert.InDelta(t, 111_319, d, 200)

	assert.Equal(t, 0.0, Distance(orb.Point{2.4, 42.5}, orb.Point{2.4, 42.5}))

	ls := orb.LineString{{2.4, 42.0}, {2.4, 42.5}, {2.4, 43.0}}
	assert.InDelta(t, d, Length(ls), 1e-6)
}

func TestProjectOnSegment(t *testing.T) {
	a, b := orb.Point{0, 0}, orb.Point{2, 0}

	assert.Equal(t, orb.Point{1, 0}, ProjectOnSegment(a, b, orb.Point{1, 1}))
	assert.Equal(t, a, ProjectOnSegment(a, b, orb.Point{-1, 1}))
	assert.Equal(t, b, ProjectOnSegment(a, b, orb.Point{3, -1}))
	assert.Equal(t, a, ProjectOnSegment(a, a, orb.Point{3, -1}))
}

func TestEdgeIndexNearest(t *testing.T) {
	lines := []orb.LineString{
		{{2.400, 42.500}, {2.410, 42.500}},             // horizontal
		{{2.410, 42.500}, {2.410, 42.510}},             // vertical, shares an endpoint
		{{2.500, 42.600}, {2.510, 42.600}},             // far away
		{{2.400, 42.5005}, {2.405, 42.5005}, {2.41, 42.5005}}, // parallel, 0.0005 north
	}
	idx := NewEdgeIndex(lines, DefaultPrecision)
	require.Equal(t, 4, idx.Len())

	got := idx.Nearest(orb.Point{2.405, 42.5001}, 0.001, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 3, got[1].Index)
	assert.InDelta(t, 0.0001, got[0].Distance, 1e-9)
	assert.InDelta(t, 2.405, got[0].Point[0], 1e-9)
	assert.InDelta(t, 42.5, got[0].Point[1], 1e-9)

	limited := idx.Nearest(orb.Point{2.405, 42.5001}, 0.001, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, 0, limited[0].Index)

	assert.Empty(t, idx.Nearest(orb.Point{2.2, 42.2}, 0.001, 3))

	// radius larger than a cell falls back to a full scan
	wide := idx.Nearest(orb.Point{2.5, 42.6}, 0.2, 0)
	assert.Len(t, wide, 4)
	assert.Equal(t, 2, wide[0].Index)
	assert.Equal(t, uint64(1), idx.Stats().FullScans)
	assert.Equal(t, uint64(4), idx.Stats().Queries)
}
