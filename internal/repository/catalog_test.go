package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *SQLCatalog {
	t.Helper()
	catalog, err := NewSQLCatalog(&config.CatalogConfig{
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "db", "catalog.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 4,
	}, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	require.NoError(t, catalog.Migrate())
	return catalog
}

func TestCatalogMigrateIsRepeatable(t *testing.T) {
	catalog := newTestCatalog(t)
	assert.NoError(t, catalog.Migrate())
}

func TestCatalogDiscardsAndResume(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, catalog.SaveDiscardsBatch(ctx, []*models.DiscardRecord{
		{Zone: "canigo", TrackID: "1", Code: models.CodeTooFewPoints, Reason: "too few points", RunID: "r1", RecordedAt: now},
		{Zone: "canigo", TrackID: "2", Code: models.CodeMatchFailed, Reason: "timeout", RunID: "r1", RecordedAt: now},
		{Zone: "canigo", TrackID: "3", Code: models.CodeMatchFailed, Reason: "empty", RunID: "r1", RecordedAt: now},
		{Zone: "matagalls", TrackID: "1", Code: models.CodeWrongActivity, Reason: "bike", RunID: "r1", RecordedAt: now},
	}))
	// a second run replaces the record of track 3
	require.NoError(t, catalog.SaveDiscardsBatch(ctx, []*models.DiscardRecord{
		{Zone: "canigo", TrackID: "3", Code: models.CodeKinematicBounds, Reason: "mean speed 0.70 m/s", RunID: "r2", RecordedAt: now},
	}))

	counts, err := catalog.DiscardCounts(ctx, "canigo")
	require.NoError(t, err)
	assert.Equal(t, map[models.DiscardCode]int{
		models.CodeTooFewPoints:    1,
		models.CodeMatchFailed:     1,
		models.CodeKinematicBounds: 1,
	}, counts)

	require.NoError(t, catalog.SaveSummariesBatch(ctx, []*models.TrackSummary{{Zone: "canigo", TrackID: "9"}}))

	ids, err := catalog.ProcessedIDs(ctx, "canigo")
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.Contains(t, ids, "9")

	ok, err := catalog.IsProcessed(ctx, "canigo", "2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = catalog.IsProcessed(ctx, "canigo", "404")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalogSummaries(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)

	dated := &models.TrackSummary{
		Zone: "canigo", TrackID: "b", User: "muntanyenc", Title: "Pic", URL: "https://example.org/b",
		Difficulty: "Moderate",
		TrackTotals: models.TrackTotals{
			TotalTime: 312.5, TotalDistance: 14.2, AverageSpeed: 0.98, AveragePace: 21.3, ElevationGain: 1290,
		},
		WeatherCondition: "Sunny",
		First:            models.GeoPoint{Latitude: 42.51, Longitude: 2.45},
		Last:             models.GeoPoint{Latitude: 42.52, Longitude: 2.46},
	}
	dated.SetDate(time.Date(2019, time.June, 15, 0, 0, 0, 0, time.UTC))
	undated := &models.TrackSummary{Zone: "canigo", TrackID: "a", Title: "Sense data"}

	require.NoError(t, catalog.SaveSummariesBatch(ctx, []*models.TrackSummary{dated, undated}))

	all, err := catalog.Summaries(ctx, "canigo")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].TrackID)
	assert.Equal(t, *dated, all[1])

	got, err := catalog.Summary(ctx, "canigo", "a")
	require.NoError(t, err)
	assert.False(t, got.HasDate())

	_, err = catalog.Summary(ctx, "canigo", "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	none, err := catalog.Summaries(ctx, "vallferrera")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCatalogMatchConfig(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)

	require.NoError(t, catalog.SaveMatchConfigsBatch(ctx, []*models.MatchConfigRecord{
		{Zone: "canigo", TrackID: "1", K: 3, Radius: 0.001, GPSError: 0.001},
	}))

	m, err := catalog.MatchConfig(ctx, "canigo", "1")
	require.NoError(t, err)
	assert.Equal(t, 3, m.K)
	assert.Equal(t, 0.001, m.GPSError)

	_, err = catalog.MatchConfig(ctx, "canigo", "2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSQLCatalogValidation(t *testing.T) {
	logger := utils.NewNopLogger()
	_, err := NewSQLCatalog(nil, logger)
	assert.Error(t, err)

	_, err = NewSQLCatalog(&config.CatalogConfig{Driver: "postgres", DSN: "x"}, logger)
	assert.ErrorContains(t, err, "unsupported catalog driver")

	assert.Equal(t, "(?,?),(?,?)", generatePlaceholders(2, 2))
}
