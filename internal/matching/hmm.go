package matching

import (
	"context"
	"math"

	"github.com/flybeeper/trail-conflation/internal/geo"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	// log-probabilities of moving between candidate edges
	logStay         = 0.0
	logAdjacent     = -0.69 // ~ln(0.5)
	logDisconnected = -9.2  // ~ln(1e-4)

	ctxCheckEvery = 256
)

// LocalMatcher is an in-process HMM map matcher over the network edge table.
// Hidden states are candidate edges of each point; the Viterbi path
// maximises emission (distance to the edge) plus transition (connectivity
// and agreement between observed and snapped step lengths) log-probabilities.
type LocalMatcher struct {
	edges []models.NetworkEdge
	index *geo.EdgeIndex
}

var _ NetworkMatcher = (*LocalMatcher)(nil)

// NewLocalMatcher indexes the table geometries at the given geohash precision.
func NewLocalMatcher(table *network.Table, precision uint) *LocalMatcher {
	return &LocalMatcher{
		edges: table.Edges(),
		index: geo.NewEdgeIndex(table.Geometries(), precision),
	}
}

// Name implements NetworkMatcher.
func (m *LocalMatcher) Name() string {
	return "local"
}

// IndexStats exposes the candidate index counters.
func (m *LocalMatcher) IndexStats() geo.IndexStats {
	return m.index.Stats()
}

// Match implements NetworkMatcher. An empty path is returned when any point
// has no candidate edge within params.Radius.
func (m *LocalMatcher) Match(ctx context.Context, line orb.LineString, params Params) (*MatchedPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return &MatchedPath{}, nil
	}

	candidates := make([][]geo.Candidate, len(line))
	for t, p := range line {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		candidates[t] = m.index.Nearest(p, params.Radius, params.K)
		if len(candidates[t]) == 0 {
			return &MatchedPath{}, nil
		}
	}

	states, err := m.viterbi(ctx, line, candidates, params.GPSError)
	if err != nil {
		return nil, err
	}

	path := &MatchedPath{
		Geometry: make(orb.LineString, len(line)),
		Points:   make([]MatchedPoint, len(line)),
	}
	for t, s := range states {
		c := candidates[t][s]
		edge := m.edges[c.Index]
		path.Geometry[t] = c.Point
		path.Points[t] = MatchedPoint{U: edge.U, V: edge.V, Point: c.Point}
	}
	return path, nil
}

func (m *LocalMatcher) viterbi(ctx context.Context, line orb.LineString, candidates [][]geo.Candidate, gpsError float64) ([]int, error) {
	if gpsError <= 0 {
		gpsError = 1e-9
	}
	emission := func(d float64) float64 {
		z := d / gpsError
		return -0.5 * z * z
	}

	n := len(line)
	score := make([]float64, len(candidates[0]))
	back := make([][]int, n)

	for i, c := range candidates[0] {
		score[i] = emission(c.Distance)
	}

	for t := 1; t < n; t++ {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		observed := planar.Distance(line[t-1], line[t])
		next := make([]float64, len(candidates[t]))
		back[t] = make([]int, len(candidates[t]))

		for j, cur := range candidates[t] {
			best, bestIdx := math.Inf(-1), 0
			for i, prev := range candidates[t-1] {
				s := score[i] + m.transition(prev, cur, observed, gpsError)
				if s > best {
					best, bestIdx = s, i
				}
			}
			next[j] = best + emission(cur.Distance)
			back[t][j] = bestIdx
		}
		score = next
	}

	last, best := 0, math.Inf(-1)
	for i, s := range score {
		if s > best {
			best, last = s, i
		}
	}

	states := make([]int, n)
	states[n-1] = last
	for t := n - 1; t > 0; t-- {
		states[t-1] = back[t][states[t]]
	}
	return states, nil
}

func (m *LocalMatcher) transition(prev, cur geo.Candidate, observed, gpsError float64) float64 {
	snapped := planar.Distance(prev.Point, cur.Point)
	detour := -math.Abs(snapped-observed) / gpsError

	if prev.Index == cur.Index {
		return logStay + detour
	}
	a, b := m.edges[prev.Index], m.edges[cur.Index]
	if a.U == b.U || a.U == b.V || a.V == b.U || a.V == b.V {
		return logAdjacent + detour
	}
	return logDisconnected + detour
}
