package benchmarks

// Бенчмарки кэша статистики поверх miniredis
//
// Ожидаемые результаты:
// - StoreStatistics (1k ребер): < 5ms
// - Statistics (1k ребер): < 5ms

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

func setupStatsCache(b *testing.B) *repository.RedisStatsCache {
	b.Helper()
	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := repository.NewRedisStatsCacheWithClient(client, time.Hour, utils.NewNopLogger())
	b.Cleanup(func() { cache.Close() })
	return cache
}

func syntheticStatistics(n int) []models.EdgeStatistic {
	stats := make([]models.EdgeStatistic, n)
	for i := range stats {
		lon := 2.3 + float64(i)*0.001
		stats[i] = models.EdgeStatistic{
			EdgeID:      int64(i + 1),
			AvgPace:     12 + float64(i%20),
			TotalTracks: 3,
			TrackIDs:    []string{"a", "b", "c"},
			Geometry:    orb.LineString{{lon, 42.5}, {lon + 0.001, 42.5}},
		}
	}
	return stats
}

func BenchmarkStatsCache(b *testing.B) {
	ctx := context.Background()

	for _, n := range []int{100, 1000} {
		stats := syntheticStatistics(n)

		b.Run(fmt.Sprintf("Store%d", n), func(b *testing.B) {
			cache := setupStatsCache(b)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := cache.StoreStatistics(ctx, "bench", "all_edges", stats); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("Load%d", n), func(b *testing.B) {
			cache := setupStatsCache(b)
			if err := cache.StoreStatistics(ctx, "bench", "all_edges", stats); err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := cache.Statistics(ctx, "bench", "all_edges"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
