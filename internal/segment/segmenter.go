// Package segment splits a labeled kinematic sequence into kilometer,
// pace-zone and edge-run segments.
package segment

import (
	"errors"
	"math"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/runs"
	"github.com/flybeeper/trail-conflation/pkg/stats"
)

const (
	// PaceZones number of quantile bins of the per-point pace.
	PaceZones = 4
	// MinPaceRun shortest run of equal pace labels kept as a zone.
	MinPaceRun = 5
	// UnzonedLabel labels the single pace segment of a track where no
	// zone lasts MinPaceRun points.
	UnzonedLabel = 0
)

// ErrEmptySequence is returned for a sequence without points.
var ErrEmptySequence = errors.New("empty kinematic sequence")

// Segmenter builds the three segmentations of a track. Each one covers the
// point ids 1..N without gaps or overlaps.
type Segmenter struct {
	paceZones  int
	minPaceRun int
}

// NewSegmenter creates a segmenter with the default pace zone settings.
func NewSegmenter() *Segmenter {
	return &Segmenter{paceZones: PaceZones, minPaceRun: MinPaceRun}
}

// window is a segment boundary: a label and the index of its first point.
type window struct {
	label int64
	start int
}

// Segment computes all three segmentations.
func (s *Segmenter) Segment(seq models.KinematicSequence) (*models.TrackSegments, error) {
	if len(seq) == 0 {
		return nil, ErrEmptySequence
	}
	return &models.TrackSegments{
		Kilometers: s.Kilometers(seq),
		PaceZones:  s.PaceZones(seq),
		EdgeRuns:   s.EdgeRuns(seq),
	}, nil
}

// Kilometers groups points by the whole kilometer of their elapsed distance.
// Every segment but the last counts as 1 km; the last one gets the remainder.
func (s *Segmenter) Kilometers(seq models.KinematicSequence) []models.Segment {
	labels := make([]int64, len(seq))
	for i, p := range seq {
		labels[i] = int64(math.Floor(p.ElapDist))
	}

	segments := build(models.SegmentKilometer, seq, windows(labels))
	if len(segments) == 0 {
		return segments
	}

	total := seq.Last().ElapDist
	for i := range segments {
		if i < len(segments)-1 {
			segments[i].Distance = 1
		} else {
			segments[i].Distance = stats.Round2(total - math.Floor(total))
		}
		setUphill(&segments[i])
	}
	return segments
}

// PaceZones labels points with the quartile of their pace, clears runs
// shorter than MinPaceRun and groups the smoothed labels.
func (s *Segmenter) PaceZones(seq models.KinematicSequence) []models.Segment {
	quantiles := stats.QuantileLabels(seq.Paces(), s.paceZones)
	labels := make([]int64, len(quantiles))
	for i, q := range quantiles {
		labels[i] = int64(q)
	}

	smoothed, ok := runs.Smooth(labels, s.minPaceRun, UnzonedLabel)
	if !ok {
		smoothed = make([]int64, len(labels))
	}
	return build(models.SegmentPaceZone, seq, windows(smoothed))
}

// EdgeRuns groups points by maximal runs of the same network edge.
func (s *Segmenter) EdgeRuns(seq models.KinematicSequence) []models.Segment {
	return build(models.SegmentEdgeRun, seq, windows(seq.EdgeIDs()))
}

func windows(labels []int64) []window {
	detected := runs.Detect(labels)
	out := make([]window, len(detected))
	for i, r := range detected {
		out[i] = window{label: r.Value, start: r.Start}
	}
	return out
}

// build aggregates the metric window [start, nextStart-1] of every segment
// (the last one runs to the final point). Geometry extends to nextStart so
// consecutive segments share their boundary point. Distance, time and
// elevation gain are differences of the cumulative fields at window ends.
func build(kind models.SegmentKind, seq models.KinematicSequence, ws []window) []models.Segment {
	segments := make([]models.Segment, 0, len(ws))
	last := len(seq) - 1

	var prevDist, prevTime, prevGain float64
	for i, w := range ws {
		end, geomEnd := last, last
		if i < len(ws)-1 {
			end = ws[i+1].start - 1
			geomEnd = ws[i+1].start
		}

		pts := seq[w.start : end+1]
		endPoint := seq[end]

		seg := models.Segment{
			Kind:          kind,
			Label:         w.label,
			MinPointID:    seq[w.start].ID,
			MaxPointID:    endPoint.ID,
			Distance:      stats.Round2(endPoint.ElapDist - prevDist),
			Time:          stats.Round2(endPoint.ElapTime - prevTime),
			ElevationGain: stats.Round2(endPoint.ElapElevGain - prevGain),
			AvgPace:       stats.Round2(stats.Mean(pts.Paces())),
			AvgSpeed:      stats.Round2(stats.Mean(pts.Speeds())),
			Geometry:      seq.LineString(w.start, geomEnd),
		}
		seg.PaceGroup = models.SegmentPaceBuckets.Group(seg.AvgPace)
		setUphill(&seg)

		prevDist, prevTime, prevGain = endPoint.ElapDist, endPoint.ElapTime, endPoint.ElapElevGain
		segments = append(segments, seg)
	}
	return segments
}

func setUphill(seg *models.Segment) {
	seg.UphillPercentage = 0
	if seg.Distance != 0 {
		seg.UphillPercentage = stats.Round2(seg.ElevationGain / (seg.Distance * 1000) * 100)
	}
	seg.UphillGroup = models.UphillBuckets.Group(seg.UphillPercentage)
}
