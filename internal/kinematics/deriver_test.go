package kinematics

import (
	"math"
	"testing"

	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedDistance(m float64) filter.DistanceFunc {
	return func(a, b orb.Point) float64 { return m }
}

func TestDeriveFields(t *testing.T) {
	d := &Deriver{distance: fixedDistance(10)}
	points := []models.RawPoint{
		{Longitude: 2.3, Latitude: 42.5, Elevation: 100, TimestampMs: 0},
		{Longitude: 2.3, Latitude: 42.5001, Elevation: 105, TimestampMs: 10_000},
		{Longitude: 2.3, Latitude: 42.5002, Elevation: 103, TimestampMs: 20_000},
	}

	seq, totals, rejection, err := d.Derive(points)
	require.NoError(t, err)
	require.Nil(t, rejection)
	require.Len(t, seq, 3)

	first := seq[0]
	assert.Equal(t, 1, first.ID)
	assert.Zero(t, first.DistDiff)
	assert.Zero(t, first.TimeDiff)
	assert.Zero(t, first.Speed)
	assert.Zero(t, first.Pace)

	second := seq[1]
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, 5.0, second.ElevDiff)
	assert.Equal(t, 10.0, second.DistDiff)
	assert.Equal(t, 10.0, second.TimeDiff)
	assert.Equal(t, 1.0, second.Speed)
	assert.Equal(t, 16.67, second.Pace)
	assert.Equal(t, 0.01, second.ElapDist)
	assert.Equal(t, 0.17, second.ElapTime)
	assert.Equal(t, 5.0, second.ElapElevGain)

	third := seq[2]
	assert.Equal(t, -2.0, third.ElevDiff)
	assert.Equal(t, 0.02, third.ElapDist)
	assert.Equal(t, 0.33, third.ElapTime)
	assert.Equal(t, 5.0, third.ElapElevGain, "negative elevation changes do not count")

	assert.Equal(t, 0.33, totals.TotalTime)
	assert.Equal(t, 0.02, totals.TotalDistance)
	assert.Equal(t, 0.67, totals.AverageSpeed)
	assert.Equal(t, 11.11, totals.AveragePace)
	assert.Equal(t, 5.0, totals.ElevationGain)
}

func TestDeriveStationaryPoints(t *testing.T) {
	d := &Deriver{distance: fixedDistance(3)}
	points := []models.RawPoint{
		{TimestampMs: 5_000},
		{TimestampMs: 5_000},
		{TimestampMs: 1_000},
	}

	seq, _, _, err := d.Derive(points)
	require.NoError(t, err)

	assert.Zero(t, seq[1].Speed, "zero time delta gives zero speed")
	assert.Zero(t, seq[1].Pace, "zero speed gives the pace sentinel")
	assert.Equal(t, 4.0, seq[2].TimeDiff, "time delta is absolute")
}

func TestDeriveMonotonic(t *testing.T) {
	d := NewDeriver(nil)
	points := make([]models.RawPoint, 400)
	for i := range points {
		points[i] = models.RawPoint{
			Longitude:   2.3 + 0.0001*float64(i),
			Latitude:    42.5 + 0.00005*math.Sin(float64(i)/7),
			Elevation:   1200 + 40*math.Sin(float64(i)/15),
			TimestampMs: int64(i) * 7_000,
		}
	}

	seq, _, _, err := d.Derive(points)
	require.NoError(t, err)

	for i := 1; i < len(seq); i++ {
		assert.Equal(t, i+1, seq[i].ID)
		assert.GreaterOrEqual(t, seq[i].ElapDist, seq[i-1].ElapDist)
		assert.GreaterOrEqual(t, seq[i].ElapTime, seq[i-1].ElapTime)
		assert.GreaterOrEqual(t, seq[i].ElapElevGain, seq[i-1].ElapElevGain)
	}
}

func TestDerivePlausibility(t *testing.T) {
	plausibility := filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), 0)
	d := &Deriver{distance: fixedDistance(10), plausibility: plausibility}

	points := []models.RawPoint{{TimestampMs: 0}, {TimestampMs: 10_000}}
	seq, _, rejection, err := d.Derive(points)
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Equal(t, models.CodeKinematicBounds, rejection.Code)
	assert.Len(t, seq, 2)

	// 4 h at 1 m/s: 14.4 km
	long := make([]models.RawPoint, 1441)
	for i := range long {
		long[i] = models.RawPoint{TimestampMs: int64(i) * 10_000, Elevation: float64(i % 2)}
	}
	_, totals, rejection, err := d.Derive(long)
	require.NoError(t, err)
	assert.Nil(t, rejection)
	assert.Equal(t, 240.0, totals.TotalTime)
	assert.Equal(t, 14.4, totals.TotalDistance)
}

func TestDerivePlausibilityUsesUnroundedMeanSpeed(t *testing.T) {
	plausibility := filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), 0)
	d := &Deriver{distance: fixedDistance(8), plausibility: plausibility}

	// 999 steps at 0.8 m/s plus the zero speed of the first point: mean 0.7992
	points := make([]models.RawPoint, 1000)
	for i := range points {
		points[i] = models.RawPoint{TimestampMs: int64(i) * 10_000}
	}
	_, totals, rejection, err := d.Derive(points)
	require.NoError(t, err)
	assert.Equal(t, 0.8, totals.AverageSpeed)
	assert.Equal(t, 166.5, totals.TotalTime)
	assert.Equal(t, 7.99, totals.TotalDistance)
	require.NotNil(t, rejection)
	assert.Equal(t, models.CodeKinematicBounds, rejection.Code)
	assert.Contains(t, rejection.Reason, "mean speed 0.7992")
}

func TestDeriveEmpty(t *testing.T) {
	_, _, _, err := NewDeriver(nil).Derive(nil)
	assert.ErrorIs(t, err, ErrEmptyTrack)
}
