package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/handler"
	"github.com/flybeeper/trail-conflation/internal/matching"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/mqtt"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/internal/service"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
)

const networkGeoJSON = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"u": 3, "v": 4}, "geometry": {"type": "LineString", "coordinates": [[2.34, 42.5], [2.40, 42.5]]}},
  {"type": "Feature", "properties": {"u": 1, "v": 2}, "geometry": {"type": "LineString", "coordinates": [[2.30, 42.5], [2.32, 42.5]]}},
  {"type": "Feature", "properties": {"u": 2, "v": 3}, "geometry": {"type": "MultiLineString", "coordinates": [[[2.32, 42.5], [2.34, 42.5]]]}}
]}`

var zone = models.Zone{
	Name:   "proves",
	Bounds: models.Bounds{LonMin: 2.2, LonMax: 2.5, LatMin: 42.4, LatMax: 42.6},
}

// doneToken завершенный токен paho
type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

// brokerStub записывает топики публикаций вместо отправки в брокер
type brokerStub struct {
	pahomqtt.Client
	mu     sync.Mutex
	topics []string
}

func (b *brokerStub) IsConnected() bool { return true }

func (b *brokerStub) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return doneToken{}
}

func (b *brokerStub) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.topics {
		if t == topic {
			n++
		}
	}
	return n
}

// PipelineTestSuite прогоняет обработку, агрегацию и API на общем каталоге
type PipelineTestSuite struct {
	suite.Suite
	ctx      context.Context
	inputDir string
	network  string
	store    *repository.TrackStore
	catalog  *repository.SQLCatalog
	cache    *repository.RedisStatsCache
	broker   *brokerStub
	logger   *utils.Logger
}

func (s *PipelineTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = utils.NewNopLogger()
	gin.SetMode(gin.TestMode)

	root := s.T().TempDir()
	s.inputDir = filepath.Join(root, "input")
	require.NoError(s.T(), os.MkdirAll(s.inputDir, 0o755))

	s.network = filepath.Join(root, "edges.geojson")
	require.NoError(s.T(), os.WriteFile(s.network, []byte(networkGeoJSON), 0o644))

	s.writeTrack("a", "2021-06-15", 2.30)
	s.writeTrack("b", "15 de gener de 2022", 2.30)
	s.writeTrack("c", "2021-06-15", 3.00) // вне зоны

	var err error
	s.catalog, err = repository.NewSQLCatalog(&config.CatalogConfig{
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(root, "catalog.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, s.logger)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.catalog.Migrate())

	mr := miniredis.RunT(s.T())
	s.cache = repository.NewRedisStatsCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour, s.logger)

	s.store = repository.NewTrackStore(filepath.Join(root, "output"))
	s.broker = &brokerStub{}
}

func (s *PipelineTestSuite) TearDownSuite() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.catalog != nil {
		s.catalog.Close()
	}
}

// writeTrack пишет экспорт трека из 200 точек на восток вдоль 42.5001
func (s *PipelineTestSuite) writeTrack(id, date string, lon0 float64) {
	start := time.Date(2021, 6, 15, 8, 0, 0, 0, time.UTC).UnixMilli()
	coords := make([][]float64, 200)
	for i := range coords {
		coords[i] = []float64{lon0 + float64(i)*0.0003, 42.5001, 1000 + float64(i)*2, float64(start + int64(i)*20_000)}
	}
	data, err := json.Marshal(map[string]interface{}{
		"activity":    map[string]string{"name": "Senderisme"},
		"coordinates": coords,
		"title":       "Volta " + id,
		"user":        "excursionista",
		"difficulty":  "Moderat",
		"date-up":     date,
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), os.WriteFile(filepath.Join(s.inputDir, id+".json"), data, 0o644))
}

func (s *PipelineTestSuite) get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func (s *PipelineTestSuite) TestEndToEnd() {
	t := s.T()
	notifier := mqtt.NewNotifierWithClient(s.broker, "trails", s.logger)

	// сеть строится из GeoJSON и кэшируется в OUTPUT_DIR
	table, err := network.Load(s.network, s.store.NetworkCachePath(zone.Name), s.logger)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	assert.FileExists(t, s.store.NetworkCachePath(zone.Name))

	processor := service.NewTrackProcessor(service.ProcessorDeps{
		Zone:         zone,
		Validator:    filter.NewValidationChain(zone.Name, filter.DefaultFilterConfig("Senderisme", zone.Bounds), s.logger),
		Matcher:      matching.NewMapMatcher(matching.NewLocalMatcher(table, 0), nil, 10*time.Second, s.logger),
		Assigner:     matching.NewEdgeAssigner(table),
		Plausibility: filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), 2012),
		Store:        s.store,
		Logger:       s.logger,
	})

	writer := service.NewBatchWriter(s.catalog, s.logger, nil)
	runner := service.NewRunner(processor, s.catalog, writer, service.RunnerOptions{Workers: 2, Notifier: notifier}, s.logger)

	stats, err := runner.RunDir(s.ctx, s.inputDir)
	require.NoError(t, err)
	require.NoError(t, writer.Stop())

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Discarded)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 3, s.broker.count("trails/proves/tracks"))

	// таблица ребер перечитывается из кэша с теми же id
	cached, err := network.Load(s.network, s.store.NetworkCachePath(zone.Name), s.logger)
	require.NoError(t, err)
	assert.Equal(t, table.Edges(), cached.Edges())

	agg, err := service.NewAggregationService(zone.Name, cached, s.catalog, s.store, service.AggregationOptions{
		Concurrency: 2,
		Cache:       s.cache,
		Notifier:    notifier,
	}, s.logger).Run(s.ctx)
	require.NoError(t, err)
	assert.Positive(t, agg.Written)
	assert.Equal(t, agg.Written, s.broker.count("trails/proves/partitions"))

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{RateLimitRPS: 1000},
		Monitoring:  config.MonitoringConfig{MetricsEnabled: true},
		Zones:       map[string]models.Bounds{zone.Name: zone.Bounds},
	}
	router := handler.NewServer(cfg, s.catalog, s.store, s.cache, s.logger).Router()

	w := s.get(router, "/api/v1/zones/proves/statistics")
	require.Equal(t, http.StatusOK, w.Code)
	partitions := gjson.Get(w.Body.String(), "partitions").String()
	for _, name := range []string{"all_edges", "year_2021", "year_2022"} {
		assert.Contains(t, partitions, name)
	}

	w = s.get(router, "/api/v1/zones/proves/statistics/all_edges")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cache", w.Header().Get("X-Data-Source"))
	features := gjson.Get(w.Body.String(), "features").Array()
	require.Len(t, features, 3)
	for _, f := range features {
		assert.Equal(t, int64(2), f.Get("properties.total_tracks").Int())
		assert.Positive(t, f.Get("properties.avg_pace").Float())
	}

	w = s.get(router, "/api/v1/zones/proves/statistics/year_2022")
	require.Equal(t, http.StatusOK, w.Code)
	for _, f := range gjson.Get(w.Body.String(), "features").Array() {
		assert.Equal(t, `["b"]`, f.Get("properties.list_tracks").Raw)
	}

	w = s.get(router, "/api/v1/zones/proves/tracks/a")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2021), gjson.Get(w.Body.String(), "summary.year").Int())
	assert.Equal(t, "Moderate", gjson.Get(w.Body.String(), "summary.difficulty").String())

	w = s.get(router, "/api/v1/zones/proves/tracks/a/segments/edges")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Get(w.Body.String(), "features").Array(), 3)

	w = s.get(router, "/api/v1/zones/proves/tracks/c")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.get(router, "/api/v1/zones/proves/discards")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total").Int())

	w = s.get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "trail_tracks_processed_total"))

	// повторный запуск ничего не обрабатывает заново
	writer = service.NewBatchWriter(s.catalog, s.logger, nil)
	again, err := service.NewRunner(processor, s.catalog, writer, service.RunnerOptions{Workers: 2}, s.logger).RunDir(s.ctx, s.inputDir)
	require.NoError(t, err)
	require.NoError(t, writer.Stop())
	assert.Equal(t, 3, again.Skipped)
	assert.Zero(t, again.Accepted+again.Discarded)
}

func TestPipelineTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(PipelineTestSuite))
}
