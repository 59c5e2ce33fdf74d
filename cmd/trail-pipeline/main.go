package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/handler"
	"github.com/flybeeper/trail-conflation/internal/matching"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/mqtt"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/internal/service"
	"github.com/flybeeper/trail-conflation/pkg/utils"
)

var (
	// Version будет установлен при сборке через ldflags
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

const usage = `Usage: trail-pipeline <command>

Commands:
  process    validate, match and segment every track of INPUT_DIR
  aggregate  build network statistics tables from accepted tracks
  run        process, then aggregate
  serve      start the read-only HTTP API
  migrate    apply catalog migrations and exit
`

// app общие зависимости команд
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	catalog *repository.SQLCatalog
	store   *repository.TrackStore
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализируем логирование
	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	logger.WithFields(map[string]interface{}{
		"version": Version,
		"command": command,
	}).Info("Starting trail pipeline")
	metrics.SetAppInfo(Version, Commit, BuildTime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Каталог нужен всем командам
	catalog, err := repository.NewSQLCatalog(&cfg.Catalog, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to open catalog")
	}
	defer catalog.Close()

	if err := catalog.Migrate(); err != nil {
		logger.WithField("error", err).Fatal("Failed to migrate catalog")
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		store:   repository.NewTrackStore(cfg.Pipeline.OutputDir),
	}

	switch command {
	case "migrate":
		logger.Info("Catalog is up to date")
	case "process":
		err = a.process(ctx)
	case "aggregate":
		err = a.aggregate(ctx)
	case "run":
		if err = a.process(ctx); err == nil {
			err = a.aggregate(ctx)
		}
	case "serve":
		err = a.serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if path := cfg.Monitoring.MetricsTextfile; path != "" && command != "serve" {
		if werr := metrics.WriteTextfile(path); werr != nil {
			logger.WithField("error", werr).Warn("Failed to write metrics textfile")
		}
	}

	if err != nil {
		logger.WithField("error", err).Fatal("Command failed")
	}
	logger.Info("Trail pipeline finished")
}

// loadTable загружает таблицу ребер зоны
func (a *app) loadTable(zone models.Zone) *network.Table {
	table, err := network.Load(a.cfg.Pipeline.NetworkFile, a.store.NetworkCachePath(zone.Name), a.logger)
	if err != nil {
		a.logger.WithField("error", err).Fatal("Failed to load network")
	}
	metrics.NetworkEdges.WithLabelValues(zone.Name).Set(float64(table.Len()))
	return table
}

// networkMatcher выбирает реализацию привязки по MATCHER
func (a *app) networkMatcher(table *network.Table) matching.NetworkMatcher {
	if a.cfg.Matcher.Kind == config.MatcherHTTP {
		return matching.NewHTTPMatcher(a.cfg.Matcher.URL, a.cfg.Matcher.Timeout)
	}
	return matching.NewLocalMatcher(table, uint(a.cfg.Matcher.GeohashPrecision))
}

// statsCache подключает Redis, если задан REDIS_URL. Ошибки не фатальны
func (a *app) statsCache(ctx context.Context) (repository.StatsCache, func()) {
	if a.cfg.Redis.URL == "" {
		return nil, func() {}
	}
	cache, err := repository.NewRedisStatsCache(&a.cfg.Redis, a.logger)
	if err != nil {
		a.logger.WithField("error", err).Warn("Statistics cache disabled")
		return nil, func() {}
	}
	if err := cache.Ping(ctx); err != nil {
		a.logger.WithField("error", err).Warn("Redis is unreachable, statistics cache disabled")
		cache.Close()
		return nil, func() {}
	}
	return cache, func() { cache.Close() }
}

// notifier подключает MQTT, если задан MQTT_URL. Ошибки не фатальны
func (a *app) notifier() (*mqtt.Notifier, func()) {
	if a.cfg.MQTT.URL == "" {
		return nil, func() {}
	}
	n, err := mqtt.NewNotifier(&a.cfg.MQTT, a.logger)
	if err != nil {
		a.logger.WithField("error", err).Warn("MQTT notifications disabled")
		return nil, func() {}
	}
	if err := n.Connect(); err != nil {
		a.logger.WithField("error", err).Warn("MQTT broker is unreachable, notifications disabled")
		return nil, func() {}
	}
	return n, n.Disconnect
}

func (a *app) process(ctx context.Context) error {
	zone, err := a.cfg.RequireZone()
	if err != nil {
		return err
	}
	table := a.loadTable(zone)

	weather, err := service.LoadWeatherFile(a.cfg.Pipeline.WeatherFile)
	if err != nil {
		return err
	}

	processor := service.NewTrackProcessor(service.ProcessorDeps{
		Zone:         zone,
		Validator:    filter.NewValidationChain(zone.Name, filter.DefaultFilterConfig(a.cfg.Pipeline.ActivityType, zone.Bounds), a.logger),
		Matcher:      matching.NewMapMatcher(a.networkMatcher(table), nil, a.cfg.Matcher.Timeout, a.logger),
		Assigner:     matching.NewEdgeAssigner(table),
		Plausibility: filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), a.cfg.Pipeline.MinYear),
		Weather:      weather,
		Store:        a.store,
		Logger:       a.logger,
	})

	batchConfig := service.DefaultBatchConfig()
	batchConfig.BatchSize = a.cfg.Performance.MaxBatchSize
	batchConfig.FlushInterval = a.cfg.Performance.BatchTimeout
	writer := service.NewBatchWriter(a.catalog, a.logger, batchConfig)

	opts := service.RunnerOptions{
		Workers:  a.cfg.Performance.Workers,
		Progress: a.cfg.Pipeline.Progress,
	}
	n, disconnect := a.notifier()
	defer disconnect()
	if n != nil {
		opts.Notifier = n
	}

	runner := service.NewRunner(processor, a.catalog, writer, opts, a.logger)
	stats, runErr := runner.RunDir(ctx, a.cfg.Pipeline.InputDir)

	// Остаток очереди записывается и при отмене
	if err := writer.Stop(); err != nil {
		a.logger.WithField("error", err).Error("Failed to flush catalog records")
		if runErr == nil {
			runErr = err
		}
	}

	if stats != nil {
		a.logger.WithFields(map[string]interface{}{
			"run_id":    stats.RunID,
			"total":     stats.Total,
			"skipped":   stats.Skipped,
			"accepted":  stats.Accepted,
			"discarded": stats.Discarded,
			"failed":    stats.Failed,
			"pending":   stats.Pending,
			"duration":  stats.Duration.String(),
		}).Info("Track processing finished")
	}
	return runErr
}

func (a *app) aggregate(ctx context.Context) error {
	zone, err := a.cfg.RequireZone()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	table := a.loadTable(zone)

	opts := service.AggregationOptions{
		Force:       a.cfg.Pipeline.ForcePartitions,
		Concurrency: a.cfg.Performance.Workers,
	}
	cache, closeCache := a.statsCache(ctx)
	defer closeCache()
	opts.Cache = cache

	n, disconnect := a.notifier()
	defer disconnect()
	if n != nil {
		opts.Notifier = n
	}

	stats, err := service.NewAggregationService(zone.Name, table, a.catalog, a.store, opts, a.logger).Run(ctx)
	if err != nil {
		return err
	}

	a.logger.WithFields(map[string]interface{}{
		"partitions": stats.Partitions,
		"written":    stats.Written,
		"skipped":    stats.Skipped,
		"empty":      stats.Empty,
		"corrected":  stats.Corrected,
		"duration":   stats.Duration.String(),
	}).Info("Network aggregation finished")
	return nil
}

func (a *app) serve(ctx context.Context) error {
	cache, closeCache := a.statsCache(ctx)
	defer closeCache()

	server := handler.NewServer(a.cfg, a.catalog, a.store, cache, a.logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")

	// Graceful shutdown с таймаутом
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
