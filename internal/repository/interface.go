package repository

import (
	"context"
	"errors"

	"github.com/flybeeper/trail-conflation/internal/aggregate"
	"github.com/flybeeper/trail-conflation/internal/models"
)

// ErrNotFound запись или таблица отсутствует
var ErrNotFound = errors.New("not found")

// Catalog интерфейс каталога обработанных треков
type Catalog interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Batch операции записи (повторная запись трека заменяет предыдущую)
	SaveDiscardsBatch(ctx context.Context, records []*models.DiscardRecord) error
	SaveMatchConfigsBatch(ctx context.Context, records []*models.MatchConfigRecord) error
	SaveSummariesBatch(ctx context.Context, summaries []*models.TrackSummary) error

	// Возобновление: трек обработан, если он принят или отбракован
	IsProcessed(ctx context.Context, zone, trackID string) (bool, error)
	ProcessedIDs(ctx context.Context, zone string) (map[string]struct{}, error)

	// Чтение
	Summaries(ctx context.Context, zone string) ([]models.TrackSummary, error)
	Summary(ctx context.Context, zone, trackID string) (*models.TrackSummary, error)
	MatchConfig(ctx context.Context, zone, trackID string) (*models.MatchConfigRecord, error)
	DiscardCounts(ctx context.Context, zone string) (map[models.DiscardCode]int, error)
}

// TableReader чтение сохраненных таблиц зоны
type TableReader interface {
	Segments(zone, trackID string, kind models.SegmentKind) ([]models.Segment, error)
	Statistics(zone, partition string) ([]models.EdgeStatistic, error)
	Partitions(zone string) ([]string, error)
}

// StatsCache кэш таблиц статистики ребер
type StatsCache interface {
	Ping(ctx context.Context) error
	Close() error

	StoreStatistics(ctx context.Context, zone, partition string, stats []models.EdgeStatistic) error
	Statistics(ctx context.Context, zone, partition string) ([]models.EdgeStatistic, error)
	Partitions(ctx context.Context, zone string) ([]string, error)
}

// Ensure implementations
var _ Catalog = (*SQLCatalog)(nil)
var _ TableReader = (*TrackStore)(nil)
var _ StatsCache = (*RedisStatsCache)(nil)
var _ aggregate.ContributionSource = (*ZoneContributions)(nil)
