// Package kinematics derives per-point distance, time, speed and pace fields
// from raw GPS points.
package kinematics

import (
	"errors"
	"math"

	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/geo"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/stats"
)

// paceFactor converts m/s to km/min: pace = 1 / (speed * 0.06) min/km.
const paceFactor = 0.06

// ErrEmptyTrack is returned for a point sequence without points.
var ErrEmptyTrack = errors.New("empty point sequence")

// Deriver computes the kinematic sequence of a track and checks it against
// plausibility limits.
type Deriver struct {
	distance     filter.DistanceFunc
	plausibility *filter.PlausibilityFilter
}

// NewDeriver creates a deriver using the geodesic distance.
func NewDeriver(plausibility *filter.PlausibilityFilter) *Deriver {
	return &Deriver{distance: geo.Distance, plausibility: plausibility}
}

// Derive computes the kinematic fields. All derived values are rounded to two
// decimals; cumulative fields are sums of the rounded deltas.
//
// A non-nil rejection means the sequence was computed but the track failed
// the plausibility limits.
func (d *Deriver) Derive(points []models.RawPoint) (models.KinematicSequence, models.TrackTotals, *models.Rejection, error) {
	if len(points) == 0 {
		return nil, models.TrackTotals{}, nil, ErrEmptyTrack
	}

	seq := make(models.KinematicSequence, len(points))
	var cumDist, cumTime, cumGain float64

	for i, p := range points {
		kp := models.KinematicPoint{
			ID:        i + 1,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Elevation: p.Elevation,
		}

		if i > 0 {
			prev := points[i-1]
			kp.ElevDiff = stats.Round2(p.Elevation - prev.Elevation)
			kp.DistDiff = stats.Round2(d.distance(prev.Point(), p.Point()))
			kp.TimeDiff = stats.Round2(math.Abs(float64(p.TimestampMs-prev.TimestampMs)) / 1000)
			if kp.TimeDiff != 0 {
				kp.Speed = stats.Round2(kp.DistDiff / kp.TimeDiff)
			}
			if kp.Speed != 0 {
				kp.Pace = stats.Round2(1 / (kp.Speed * paceFactor))
			}
		}

		cumDist += kp.DistDiff
		cumTime += kp.TimeDiff
		if kp.ElevDiff > 0 {
			cumGain += kp.ElevDiff
		}
		kp.ElapDist = stats.Round2(cumDist / 1000)
		kp.ElapTime = stats.Round2(cumTime / 60)
		kp.ElapElevGain = stats.Round2(cumGain)

		seq[i] = kp
	}

	totals := Totals(seq)
	if d.plausibility != nil {
		// limits apply to the unrounded mean speed
		check := totals
		check.AverageSpeed = stats.Mean(seq.Speeds())
		if rejection := d.plausibility.CheckTotals(check); rejection != nil {
			return seq, totals, rejection, nil
		}
	}
	return seq, totals, nil, nil
}

// Totals summarises a kinematic sequence.
func Totals(seq models.KinematicSequence) models.TrackTotals {
	last := seq.Last()
	return models.TrackTotals{
		TotalTime:     last.ElapTime,
		TotalDistance: last.ElapDist,
		AverageSpeed:  stats.Round2(stats.Mean(seq.Speeds())),
		AveragePace:   stats.Round2(stats.Mean(seq.Paces())),
		ElevationGain: last.ElapElevGain,
	}
}
