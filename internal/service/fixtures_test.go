package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/matching"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/mqtt"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

const testActivity = "Senderisme"

var testZone = models.Zone{
	Name:   "proves",
	Bounds: models.Bounds{LonMin: 2.2, LonMax: 2.5, LatMin: 42.4, LatMax: 42.6},
}

// testTable: three consecutive edges along lat 42.5, ids 1, 2, 3 in (u, v) order.
func testTable(t *testing.T) *network.Table {
	t.Helper()
	table, err := network.BuildTable([]network.RawEdge{
		{U: 1, V: 2, Geometry: orb.LineString{{2.30, 42.5}, {2.32, 42.5}}},
		{U: 2, V: 3, Geometry: orb.LineString{{2.32, 42.5}, {2.34, 42.5}}},
		{U: 3, V: 4, Geometry: orb.LineString{{2.34, 42.5}, {2.40, 42.5}}},
	})
	require.NoError(t, err)
	return table
}

// lonMatcher snaps every point onto lat 42.5 and picks the edge by longitude.
type lonMatcher struct {
	empty bool
}

func (m *lonMatcher) Name() string { return "lon" }

func (m *lonMatcher) Match(_ context.Context, line orb.LineString, _ matching.Params) (*matching.MatchedPath, error) {
	if m.empty {
		return &matching.MatchedPath{}, nil
	}
	path := &matching.MatchedPath{}
	for _, p := range line {
		snapped := orb.Point{p[0], 42.5}
		mp := matching.MatchedPoint{U: 3, V: 4, Point: snapped}
		switch {
		case p[0] < 2.32:
			mp.U, mp.V = 1, 2
		case p[0] < 2.34:
			mp.U, mp.V = 2, 3
		}
		path.Geometry = append(path.Geometry, snapped)
		path.Points = append(path.Points, mp)
	}
	return path, nil
}

// syntheticTrack: 200 points eastward along lat 42.5001 every ~25 m and 20 s
// (about 4.9 km in 66 min), climbing 2 m per point.
func syntheticTrack(id, date string) *models.RawTrack {
	start := time.Date(2021, 6, 15, 8, 0, 0, 0, time.UTC).UnixMilli()
	track := &models.RawTrack{
		ID:           id,
		ActivityType: testActivity,
		Meta: models.TrackMeta{
			Title:      "Volta " + id,
			User:       "excursionista",
			URL:        "https://example.org/" + id,
			Difficulty: "Moderat",
			DateText:   date,
		},
		Waypoints: []models.Waypoint{{Name: "Font", Type: "Font", Longitude: 2.31, Latitude: 42.5, Elevation: 1100}},
	}
	for i := 0; i < 200; i++ {
		track.Points = append(track.Points, models.RawPoint{
			Longitude:   2.30 + float64(i)*0.0003,
			Latitude:    42.5001,
			Elevation:   1000 + float64(i)*2,
			TimestampMs: start + int64(i)*20_000,
		})
	}
	return track
}

// writeTrackJSON stores the track in the activity export format.
func writeTrackJSON(t *testing.T, dir string, track *models.RawTrack) string {
	t.Helper()
	coords := make([][]float64, len(track.Points))
	for i, p := range track.Points {
		coords[i] = []float64{p.Longitude, p.Latitude, p.Elevation, float64(p.TimestampMs)}
	}
	data, err := json.Marshal(map[string]interface{}{
		"activity":    map[string]string{"name": track.ActivityType},
		"coordinates": coords,
		"title":       track.Meta.Title,
		"user":        track.Meta.User,
		"url":         track.Meta.URL,
		"difficulty":  track.Meta.Difficulty,
		"date-up":     track.Meta.DateText,
	})
	require.NoError(t, err)

	path := filepath.Join(dir, track.ID+".json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestProcessor(t *testing.T, store *repository.TrackStore, matcher matching.NetworkMatcher, minYear int, weather WeatherLookup) *TrackProcessor {
	t.Helper()
	table := testTable(t)
	logger := utils.NewNopLogger()
	return NewTrackProcessor(ProcessorDeps{
		Zone:         testZone,
		Validator:    filter.NewValidationChain(testZone.Name, filter.DefaultFilterConfig(testActivity, testZone.Bounds), logger),
		Matcher:      matching.NewMapMatcher(matcher, nil, time.Second, logger),
		Assigner:     matching.NewEdgeAssigner(table),
		Plausibility: filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), minYear),
		Weather:      weather,
		Store:        store,
		Logger:       logger,
	})
}

func newTestCatalog(t *testing.T) *repository.SQLCatalog {
	t.Helper()
	catalog, err := repository.NewSQLCatalog(&config.CatalogConfig{
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "catalog.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	require.NoError(t, catalog.Migrate())
	return catalog
}

func fastBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
		ChannelBuffer: 16,
		MaxRetries:    1,
		RetryDelay:    time.Millisecond,
		WriteTimeout:  time.Second,
	}
}

// recordingNotifier collects published events.
type recordingNotifier struct {
	mu         sync.Mutex
	tracks     []mqtt.TrackEvent
	partitions []mqtt.PartitionEvent
}

func (n *recordingNotifier) PublishTrack(_ string, event mqtt.TrackEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tracks = append(n.tracks, event)
	return nil
}

func (n *recordingNotifier) PublishPartition(_ string, event mqtt.PartitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partitions = append(n.partitions, event)
	return nil
}
