// Package aggregate reduces edge-run segments of many tracks into per-edge
// network statistics.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/pkg/pool"
	"github.com/flybeeper/trail-conflation/pkg/stats"
)

// IQR correction parameters of the per-edge pace distribution.
const (
	IQRLowQuantile  = 0.35
	IQRHighQuantile = 0.65
	IQRFactor       = 1.5
)

// ErrEmptyPartition is returned when no selected track contributes to any edge.
var ErrEmptyPartition = errors.New("partition has no edge contributions")

// ContributionSource provides the edge-run contributions of one track.
type ContributionSource interface {
	EdgeContributions(trackID string) ([]models.EdgeContribution, error)
}

// Result is one statistics table.
type Result struct {
	Statistics []models.EdgeStatistic
	Bounds     stats.IQRBounds
	Corrected  int // edges whose pace was replaced
}

// NetworkAggregator computes per-edge statistics against the shared edge table.
type NetworkAggregator struct {
	table *network.Table
}

// NewNetworkAggregator creates an aggregator.
func NewNetworkAggregator(table *network.Table) *NetworkAggregator {
	return &NetworkAggregator{table: table}
}

// Contributions turns the edge-run segments of a track into contributions.
func Contributions(trackID string, edgeRuns []models.Segment) []models.EdgeContribution {
	out := make([]models.EdgeContribution, 0, len(edgeRuns))
	for _, s := range edgeRuns {
		out = append(out, models.EdgeContribution{TrackID: trackID, EdgeID: s.Label, AvgPace: s.AvgPace})
	}
	return out
}

// Collect gathers the contributions of the given tracks in order.
func (a *NetworkAggregator) Collect(trackIDs []string, src ContributionSource) ([]models.EdgeContribution, error) {
	var all []models.EdgeContribution
	for _, id := range trackIDs {
		c, err := src.EdgeContributions(id)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", id, err)
		}
		all = append(all, c...)
	}
	return all, nil
}

// Aggregate builds the statistics table: every contribution is appended to
// its edge, edges without contributions are dropped, the per-edge pace is the
// rounded mean of its contributions, and paces outside the IQR bounds of the
// per-edge distribution are replaced by the mean of the in-bound ones.
// Contributions to edges missing from the table are ignored.
func (a *NetworkAggregator) Aggregate(contributions []models.EdgeContribution) (*Result, error) {
	type accumulator struct {
		tracks []string
		paces  []float64
	}
	byEdge := make(map[int64]*accumulator)

	for _, c := range contributions {
		if _, ok := a.table.Edge(c.EdgeID); !ok {
			continue
		}
		acc, ok := byEdge[c.EdgeID]
		if !ok {
			acc = &accumulator{}
			byEdge[c.EdgeID] = acc
		}
		acc.tracks = append(acc.tracks, c.TrackID)
		acc.paces = append(acc.paces, c.AvgPace)
	}
	if len(byEdge) == 0 {
		return nil, ErrEmptyPartition
	}

	ids := make([]int64, 0, len(byEdge))
	for id := range byEdge {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := &Result{Statistics: make([]models.EdgeStatistic, len(ids))}
	paces := pool.Global.GetFloats()
	defer pool.Global.PutFloats(paces)
	for i, id := range ids {
		acc := byEdge[id]
		edge, _ := a.table.Edge(id)
		*paces = append(*paces, stats.Round2(stats.Mean(acc.paces)))
		result.Statistics[i] = models.EdgeStatistic{
			EdgeID:      id,
			TotalTracks: len(acc.tracks),
			TrackIDs:    acc.tracks,
			Geometry:    edge.Geometry,
		}
	}

	corrected, bounds, replaced := CorrectOutliers(*paces)
	for i := range result.Statistics {
		result.Statistics[i].AvgPace = corrected[i]
	}
	result.Bounds = bounds
	result.Corrected = replaced

	return result, nil
}

// CorrectOutliers applies the IQR correction to per-edge paces.
func CorrectOutliers(paces []float64) ([]float64, stats.IQRBounds, int) {
	bounds := stats.ComputeIQRBounds(paces, IQRLowQuantile, IQRHighQuantile, IQRFactor)
	corrected, replaced := stats.ReplaceOutliers(paces, bounds)
	return corrected, bounds, replaced
}
