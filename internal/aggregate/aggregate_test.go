package aggregate

import (
	"errors"
	"testing"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/pkg/stats"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeEdges(t *testing.T) *network.Table {
	t.Helper()
	table, err := network.BuildTable([]network.RawEdge{
		{U: 1, V: 2, Geometry: orb.LineString{{0, 0}, {1, 0}}},
		{U: 2, V: 3, Geometry: orb.LineString{{1, 0}, {2, 0}}},
		{U: 3, V: 4, Geometry: orb.LineString{{2, 0}, {3, 0}}},
	})
	require.NoError(t, err)
	return table
}

func TestAggregateDropsEdgesWithoutTracks(t *testing.T) {
	agg := NewNetworkAggregator(threeEdges(t))

	res, err := agg.Aggregate([]models.EdgeContribution{
		{TrackID: "a", EdgeID: 1, AvgPace: 5},
		{TrackID: "b", EdgeID: 1, AvgPace: 100},
		{TrackID: "a", EdgeID: 2, AvgPace: 6},
		{TrackID: "a", EdgeID: 99, AvgPace: 7}, // not in the table
	})
	require.NoError(t, err)
	require.Len(t, res.Statistics, 2)

	e1 := res.Statistics[0]
	assert.Equal(t, int64(1), e1.EdgeID)
	assert.Equal(t, 52.5, e1.AvgPace)
	assert.Equal(t, 2, e1.TotalTracks)
	assert.Equal(t, []string{"a", "b"}, e1.TrackIDs)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 0}}, e1.Geometry)

	assert.Equal(t, int64(2), res.Statistics[1].EdgeID)
	assert.Equal(t, 6.0, res.Statistics[1].AvgPace)
	assert.Equal(t, 0, res.Corrected)
}

func TestAggregateReplacesOutlierWithInBoundMean(t *testing.T) {
	table, err := network.BuildTable([]network.RawEdge{
		{U: 1, V: 2}, {U: 2, V: 3}, {U: 3, V: 4}, {U: 4, V: 5}, {U: 5, V: 6},
	})
	require.NoError(t, err)

	var contributions []models.EdgeContribution
	for i, pace := range []float64{10, 11, 12, 13, 100} {
		contributions = append(contributions, models.EdgeContribution{TrackID: "t", EdgeID: int64(i + 1), AvgPace: pace})
	}
	// a second pass over the same edge counts as another contribution
	contributions = append(contributions, models.EdgeContribution{TrackID: "t", EdgeID: 1, AvgPace: 10})

	res, err := NewNetworkAggregator(table).Aggregate(contributions)
	require.NoError(t, err)
	require.Len(t, res.Statistics, 5)

	assert.Equal(t, 2, res.Statistics[0].TotalTracks)
	assert.Equal(t, 1, res.Corrected)
	assert.Equal(t, 11.5, res.Statistics[4].AvgPace)
	assert.InDelta(t, 11.4, res.Bounds.Q1, 1e-9)
	assert.InDelta(t, 12.6, res.Bounds.Q3, 1e-9)

	// every corrected pace lies within the bounds it was corrected against
	for _, s := range res.Statistics {
		assert.True(t, res.Bounds.Contains(s.AvgPace), "edge %d", s.EdgeID)
	}
}

func TestAggregateCorrectionIsSinglePass(t *testing.T) {
	table, err := network.BuildTable([]network.RawEdge{
		{U: 1, V: 2}, {U: 2, V: 3}, {U: 3, V: 4}, {U: 4, V: 5}, {U: 5, V: 6},
	})
	require.NoError(t, err)

	var contributions []models.EdgeContribution
	for i, pace := range []float64{10, 11, 12, 13, 100} {
		contributions = append(contributions, models.EdgeContribution{TrackID: "t", EdgeID: int64(i + 1), AvgPace: pace})
	}
	res, err := NewNetworkAggregator(table).Aggregate(contributions)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Corrected)

	paces := make([]float64, len(res.Statistics))
	for i, s := range res.Statistics {
		paces[i] = s.AvgPace
	}
	assert.Equal(t, []float64{10, 11, 12, 13, 11.5}, paces)

	// bounds recomputed on the corrected table are narrower and would
	// flag the extremes again; the aggregator does not iterate
	rebound := stats.ComputeIQRBounds(paces, IQRLowQuantile, IQRHighQuantile, IQRFactor)
	assert.InDelta(t, 11.2, rebound.Q1, 1e-9)
	assert.InDelta(t, 11.8, rebound.Q3, 1e-9)
	assert.False(t, rebound.Contains(10))
	assert.False(t, rebound.Contains(13))
}

func TestAggregateEmptyPartition(t *testing.T) {
	agg := NewNetworkAggregator(threeEdges(t))
	_, err := agg.Aggregate(nil)
	assert.ErrorIs(t, err, ErrEmptyPartition)

	_, err = agg.Aggregate([]models.EdgeContribution{{TrackID: "x", EdgeID: 42, AvgPace: 3}})
	assert.ErrorIs(t, err, ErrEmptyPartition)
}

type mapSource map[string][]models.EdgeContribution

func (m mapSource) EdgeContributions(id string) ([]models.EdgeContribution, error) {
	c, ok := m[id]
	if !ok {
		return nil, errors.New("missing")
	}
	return c, nil
}

func TestCollect(t *testing.T) {
	agg := NewNetworkAggregator(threeEdges(t))
	src := mapSource{
		"a": Contributions("a", []models.Segment{{Label: 1, AvgPace: 10}, {Label: 2, AvgPace: 12}}),
		"b": Contributions("b", []models.Segment{{Label: 2, AvgPace: 14}}),
	}

	all, err := agg.Collect([]string{"a", "b"}, src)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.EdgeContribution{TrackID: "b", EdgeID: 2, AvgPace: 14}, all[2])

	_, err = agg.Collect([]string{"a", "c"}, src)
	assert.ErrorContains(t, err, "track c")
}

func TestEnumeratePartitions(t *testing.T) {
	summaries := []models.TrackSummary{
		{TrackID: "1", Difficulty: "Easy", Year: 2020, Month: "Jun", Season: "Sum", Weekday: "Sat",
			TrackTotals: models.TrackTotals{TotalDistance: 12, TotalTime: 200, AveragePace: 18, ElevationGain: 700}},
		{TrackID: "2", Difficulty: "Very difficult", Year: 2021, Month: "Jun", Season: "Sum", Weekday: "Sun", WeatherCondition: "Partly cloudy",
			TrackTotals: models.TrackTotals{TotalDistance: 31, TotalTime: 400, AveragePace: 25, ElevationGain: 2100}},
		{TrackID: "3", Difficulty: "Easy",
			TrackTotals: models.TrackTotals{TotalDistance: 4, TotalTime: 70, AveragePace: 17, ElevationGain: 100}},
	}

	parts := Enumerate(summaries)
	byName := make(map[string]Partition)
	var names []string
	for _, p := range parts {
		byName[p.Name()] = p
		names = append(names, p.Name())
		assert.True(t, ValidName(p.Name()), p.Name())
	}

	assert.Equal(t, "all_edges", names[0])
	assert.Equal(t, []string{"1", "2", "3"}, byName["all_edges"].TrackIDs)
	assert.Equal(t, []string{"1", "3"}, byName["difficulty_easy"].TrackIDs)
	assert.Equal(t, []string{"2"}, byName["difficulty_very_difficult"].TrackIDs)
	assert.Equal(t, []string{"1"}, byName["year_2020"].TrackIDs)
	assert.Equal(t, []string{"1", "2"}, byName["month_jun"].TrackIDs)
	assert.Equal(t, []string{"2"}, byName["weather_partly_cloudy"].TrackIDs)
	assert.Equal(t, []string{"1"}, byName["distance_3"].TrackIDs)
	assert.Equal(t, []string{"2"}, byName["distance_7"].TrackIDs)
	assert.Equal(t, []string{"3"}, byName["time_2"].TrackIDs)
	assert.Equal(t, []string{"1", "3"}, byName["pace_1"].TrackIDs)
	assert.Equal(t, []string{"2"}, byName["elevation_5"].TrackIDs)

	_, ok := byName["year_0"]
	assert.False(t, ok, "tracks without a date are not in calendar partitions")
	assert.Equal(t, "difficulty_easy.csv", byName["difficulty_easy"].FileName())

	assert.False(t, ValidName("../etc/passwd"))
}

func TestSlugProducesValidNames(t *testing.T) {
	cases := map[string]string{
		"Rain, light":          "rain_light",
		"  Very  difficult ":   "very_difficult",
		"Snow/Rain":            "snow_rain",
		"Überhängend (T6)":     "überhängend_t6",
		"Partly-cloudy & mist": "partly_cloudy_mist",
		"2020":                 "2020",
		"?!":                   "",
	}
	for in, want := range cases {
		got := Slug(in)
		assert.Equal(t, want, got, in)
		if want != "" {
			assert.True(t, ValidName("weather_"+got), got)
		}
	}
}

func TestEnumerateMergesValuesWithSameName(t *testing.T) {
	summaries := []models.TrackSummary{
		{TrackID: "1", WeatherCondition: "Rain"},
		{TrackID: "2", WeatherCondition: "rain"},
		{TrackID: "3", WeatherCondition: "Rain, light"},
		{TrackID: "4", WeatherCondition: "rain light"},
		{TrackID: "5", WeatherCondition: "***"},
	}

	var weather []Partition
	for _, p := range Enumerate(summaries) {
		if p.Kind == PartitionWeather {
			weather = append(weather, p)
		}
	}
	require.Len(t, weather, 2)
	assert.Equal(t, "weather_rain", weather[0].Name())
	assert.Equal(t, "Rain", weather[0].Value)
	assert.Equal(t, []string{"1", "2"}, weather[0].TrackIDs)
	assert.Equal(t, "weather_rain_light", weather[1].Name())
	assert.Equal(t, []string{"3", "4"}, weather[1].TrackIDs)
}
