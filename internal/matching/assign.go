package matching

import (
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/pkg/runs"
)

// MinEdgeRun is the shortest run of equal edge ids kept as a real traversal.
const MinEdgeRun = 3

// EdgeAssigner labels kinematic points with network edge ids.
type EdgeAssigner struct {
	table  *network.Table
	minRun int
}

// NewEdgeAssigner creates an assigner over the shared edge table.
func NewEdgeAssigner(table *network.Table) *EdgeAssigner {
	return &EdgeAssigner{table: table, minRun: MinEdgeRun}
}

// Assign returns a copy of seq with EdgeID and the snapped coordinates set.
// Point i takes the edge of matched point i; points the matcher did not
// cover or whose endpoints are not in the table start unlabeled. Runs shorter
// than MinEdgeRun are cleared and refilled from their neighbours.
func (a *EdgeAssigner) Assign(seq models.KinematicSequence, path *MatchedPath) (models.KinematicSequence, *models.Rejection) {
	out := make(models.KinematicSequence, len(seq))
	copy(out, seq)

	labels := make([]int64, len(out))
	unknown := 0
	for i := range out {
		if path == nil || i >= len(path.Points) {
			unknown++
			continue
		}
		mp := path.Points[i]
		out[i].MatchedLon, out[i].MatchedLat = mp.Point[0], mp.Point[1]
		if id, ok := a.table.Lookup(mp.U, mp.V); ok {
			labels[i] = id
		} else {
			unknown++
		}
	}

	smoothed, ok := runs.Smooth(labels, a.minRun, 0)
	if !ok {
		return nil, models.Reject(models.CodeMatchFailed, "no edge run of %d points (%d of %d points unlabeled)", a.minRun, unknown, len(out))
	}
	for i := range out {
		out[i].EdgeID = smoothed[i]
	}
	return out, nil
}
