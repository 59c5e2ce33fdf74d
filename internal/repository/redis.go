package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/pool"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс таблиц статистики: edgestats:{zone}:{partition}
	EdgeStatsPrefix = "edgestats:"

	// Множество партиций зоны: edgestats:{zone}:partitions
	partitionsSuffix = ":partitions"

	// TTL по умолчанию, если в конфигурации не задан
	DefaultStatsTTL = 24 * time.Hour
)

// StatsKey ключ таблицы статистики партиции
func StatsKey(zone, partition string) string {
	return EdgeStatsPrefix + zone + ":" + partition
}

// PartitionsKey ключ множества партиций зоны
func PartitionsKey(zone string) string {
	return EdgeStatsPrefix + zone + partitionsSuffix
}

// RedisStatsCache кэш таблиц статистики ребер в Redis
type RedisStatsCache struct {
	client *redis.Client
	logger *utils.Logger
	ttl    time.Duration
}

// NewRedisStatsCache создает новый Redis кэш
func NewRedisStatsCache(cfg *config.RedisConfig, logger *utils.Logger) (*RedisStatsCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Парсим Redis URL
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Дополнительные настройки
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return NewRedisStatsCacheWithClient(redis.NewClient(opt), cfg.TTL, logger), nil
}

// NewRedisStatsCacheWithClient создает кэш поверх готового клиента
func NewRedisStatsCacheWithClient(client *redis.Client, ttl time.Duration, logger *utils.Logger) *RedisStatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &RedisStatsCache{client: client, logger: logger, ttl: ttl}
}

// Ping проверяет соединение с Redis
func (r *RedisStatsCache) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisStatsCache) Close() error {
	return r.client.Close()
}

// StoreStatistics сохраняет таблицу партиции и добавляет ее в множество партиций зоны
func (r *RedisStatsCache) StoreStatistics(ctx context.Context, zone, partition string, stats []models.EdgeStatistic) error {
	start := time.Now()

	buf := pool.Global.GetBuffer()
	defer pool.Global.PutBuffer(buf)
	if err := json.NewEncoder(buf).Encode(stats); err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, StatsKey(zone, partition), buf.Bytes(), r.ttl)
	pipe.SAdd(ctx, PartitionsKey(zone), partition)
	pipe.Expire(ctx, PartitionsKey(zone), r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("store_statistics").Inc()
		return fmt.Errorf("failed to store statistics: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"zone":      zone,
		"partition": partition,
		"edges":     len(stats),
		"bytes":     buf.Len(),
	}).Debug("Stored edge statistics in Redis")

	metrics.RedisOperationDuration.WithLabelValues("store_statistics").Observe(time.Since(start).Seconds())
	return nil
}

// Statistics читает таблицу партиции. Отсутствие ключа - ErrNotFound
func (r *RedisStatsCache) Statistics(ctx context.Context, zone, partition string) ([]models.EdgeStatistic, error) {
	start := time.Now()

	data, err := r.client.Get(ctx, StatsKey(zone, partition)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_statistics").Inc()
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	var stats []models.EdgeStatistic
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode cached statistics %s: %w", partition, err)
	}

	metrics.RedisOperationDuration.WithLabelValues("get_statistics").Observe(time.Since(start).Seconds())
	return stats, nil
}

// Partitions возвращает отсортированный список закэшированных партиций зоны
func (r *RedisStatsCache) Partitions(ctx context.Context, zone string) ([]string, error) {
	names, err := r.client.SMembers(ctx, PartitionsKey(zone)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisOperationErrors.WithLabelValues("list_partitions").Inc()
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
