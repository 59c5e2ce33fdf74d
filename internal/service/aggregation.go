package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/trail-conflation/internal/aggregate"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/mqtt"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// PartitionNotifier публикует событие о записанной таблице статистики
type PartitionNotifier interface {
	PublishPartition(zone string, event mqtt.PartitionEvent) error
}

// AggregationStats итоги агрегации
type AggregationStats struct {
	Partitions int           `json:"partitions"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Empty      int           `json:"empty"`
	Corrected  int           `json:"corrected"`
	Duration   time.Duration `json:"duration"`
}

// AggregationOptions параметры агрегации
type AggregationOptions struct {
	Force       bool // пересчитать уже записанные партиции
	Concurrency int
	Cache       repository.StatsCache // может быть nil
	Notifier    PartitionNotifier     // может быть nil
}

// AggregationService строит таблицы статистики сети по партициям принятых треков
type AggregationService struct {
	zone       string
	catalog    repository.Catalog
	store      *repository.TrackStore
	aggregator *aggregate.NetworkAggregator
	opts       AggregationOptions
	logger     *utils.Logger

	mu    sync.Mutex
	stats *AggregationStats
}

// NewAggregationService создает сервис агрегации зоны
func NewAggregationService(zone string, table *network.Table, catalog repository.Catalog, store *repository.TrackStore, opts AggregationOptions, logger *utils.Logger) *AggregationService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &AggregationService{
		zone:       zone,
		catalog:    catalog,
		store:      store,
		aggregator: aggregate.NewNetworkAggregator(table),
		opts:       opts,
		logger:     logger.WithField("zone", zone),
	}
}

// Run перечисляет партиции по сводкам каталога и записывает их таблицы.
// Существующие таблицы пропускаются, если не задан Force. Пустые партиции не пишутся
func (s *AggregationService) Run(ctx context.Context) (*AggregationStats, error) {
	start := time.Now()
	s.stats = &AggregationStats{}

	summaries, err := s.catalog.Summaries(ctx, s.zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load track summaries: %w", err)
	}
	if len(summaries) == 0 {
		s.logger.Warn("No accepted tracks, nothing to aggregate")
		return s.stats, nil
	}

	partitions := aggregate.Enumerate(summaries)
	s.stats.Partitions = len(partitions)
	s.logger.WithField("tracks", len(summaries)).
		WithField("partitions", len(partitions)).
		Info("Starting network aggregation")

	src := s.store.Contributions(s.zone)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, p := range partitions {
		g.Go(func() error {
			return s.partition(gctx, p, src)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.PartitionsTotal.WithLabelValues("failed").Inc()
		return s.stats, err
	}

	s.stats.Duration = time.Since(start)
	s.logger.WithFields(map[string]interface{}{
		"written":   s.stats.Written,
		"skipped":   s.stats.Skipped,
		"empty":     s.stats.Empty,
		"corrected": s.stats.Corrected,
		"duration":  s.stats.Duration,
	}).Info("Network aggregation finished")

	return s.stats, nil
}

func (s *AggregationService) partition(ctx context.Context, p aggregate.Partition, src aggregate.ContributionSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := p.Name()
	logger := s.logger.WithField("partition", name)

	if !s.opts.Force && s.store.HasStatistics(s.zone, name) {
		s.count(func(st *AggregationStats) { st.Skipped++ })
		metrics.PartitionsTotal.WithLabelValues("skipped").Inc()
		logger.Debug("Partition table exists, skipping")
		return nil
	}

	contributions, err := s.aggregator.Collect(p.TrackIDs, src)
	if err != nil {
		return fmt.Errorf("partition %s: %w", name, err)
	}

	result, err := s.aggregator.Aggregate(contributions)
	if errors.Is(err, aggregate.ErrEmptyPartition) {
		s.count(func(st *AggregationStats) { st.Empty++ })
		metrics.PartitionsTotal.WithLabelValues("empty").Inc()
		logger.Debug("Partition has no edge contributions")
		return nil
	}
	if err != nil {
		return fmt.Errorf("partition %s: %w", name, err)
	}

	if err := s.store.WriteStatistics(s.zone, name, result.Statistics); err != nil {
		return fmt.Errorf("partition %s: %w", name, err)
	}

	s.count(func(st *AggregationStats) {
		st.Written++
		st.Corrected += result.Corrected
	})
	metrics.PartitionsTotal.WithLabelValues("written").Inc()
	metrics.OutliersCorrected.WithLabelValues(string(p.Kind)).Add(float64(result.Corrected))

	logger.WithFields(map[string]interface{}{
		"tracks":    len(p.TrackIDs),
		"edges":     len(result.Statistics),
		"corrected": result.Corrected,
		"lower":     result.Bounds.Lower,
		"upper":     result.Bounds.Upper,
	}).Info("Partition statistics written")

	// кэш и уведомления не влияют на результат агрегации
	if s.opts.Cache != nil {
		if err := s.opts.Cache.StoreStatistics(ctx, s.zone, name, result.Statistics); err != nil {
			logger.WithError(err).Warn("Failed to cache partition statistics")
		}
	}
	if s.opts.Notifier != nil {
		event := mqtt.PartitionEvent{Partition: name, Edges: len(result.Statistics), Corrected: result.Corrected}
		if err := s.opts.Notifier.PublishPartition(s.zone, event); err != nil {
			logger.WithError(err).Warn("Failed to publish partition event")
		}
	}
	return nil
}

func (s *AggregationService) count(update func(*AggregationStats)) {
	s.mu.Lock()
	update(s.stats)
	s.mu.Unlock()
}
