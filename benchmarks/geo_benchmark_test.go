package benchmarks

// Бенчмарки геометрических операций привязки
//
// Ожидаемые результаты (цели производительности):
// - Distance: < 100 ns/op, 0 allocs/op
// - EdgeIndex Nearest (10k ребер, радиус 20 м): < 10µs
// - LocalMatcher Match (200 точек): < 5ms
//
// Реалистичные размеры данных:
// - 5k-20k ребер тропиночной сети в зоне
// - 100-3000 точек в треке

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/flybeeper/trail-conflation/internal/geo"
	"github.com/flybeeper/trail-conflation/internal/matching"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/paulmach/orb"
)

// gridNetwork строит сеть n x n узлов с шагом ~100 м вокруг 42.5N 2.3E
func gridNetwork(n int) []network.RawEdge {
	const step = 0.001
	node := func(i, j int) int64 { return int64(i*n + j + 1) }
	at := func(i, j int) orb.Point { return orb.Point{2.3 + float64(j)*step, 42.5 + float64(i)*step} }

	edges := make([]network.RawEdge, 0, 2*n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j+1 < n {
				edges = append(edges, network.RawEdge{U: node(i, j), V: node(i, j+1), Geometry: orb.LineString{at(i, j), at(i, j+1)}})
			}
			if i+1 < n {
				edges = append(edges, network.RawEdge{U: node(i, j), V: node(i+1, j), Geometry: orb.LineString{at(i, j), at(i+1, j)}})
			}
		}
	}
	return edges
}

// BenchmarkDistance benchmarks distance calculation
func BenchmarkDistance(b *testing.B) {
	p1 := orb.Point{2.30, 42.50}
	p2 := orb.Point{2.31, 42.51}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = geo.Distance(p1, p2)
	}
}

// BenchmarkLength benchmarks polyline length
func BenchmarkLength(b *testing.B) {
	ls := make(orb.LineString, 1000)
	for i := range ls {
		ls[i] = orb.Point{2.3 + float64(i)*0.0001, 42.5}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = geo.Length(ls)
	}
}

// BenchmarkEdgeIndexBuild benchmarks index construction
func BenchmarkEdgeIndexBuild(b *testing.B) {
	for _, n := range []int{20, 50, 70} {
		table, err := network.BuildTable(gridNetwork(n))
		if err != nil {
			b.Fatal(err)
		}
		lines := table.Geometries()

		b.Run(fmt.Sprintf("%dedges", len(lines)), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = geo.NewEdgeIndex(lines, 7)
			}
		})
	}
}

// BenchmarkEdgeIndexNearest benchmarks candidate lookup
func BenchmarkEdgeIndexNearest(b *testing.B) {
	table, err := network.BuildTable(gridNetwork(70))
	if err != nil {
		b.Fatal(err)
	}
	index := geo.NewEdgeIndex(table.Geometries(), 7)

	rng := rand.New(rand.NewSource(42))
	queries := make([]orb.Point, 1000)
	for i := range queries {
		queries[i] = orb.Point{2.3 + rng.Float64()*0.069, 42.5 + rng.Float64()*0.069}
	}

	testCases := []struct {
		name   string
		radius float64
	}{
		{"20m", 0.0002},
		{"50m", 0.0005},
	}
	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = index.Nearest(queries[i%len(queries)], tc.radius, 4)
			}
		})
	}
}

// BenchmarkLocalMatch benchmarks HMM matching of a track across the grid
func BenchmarkLocalMatch(b *testing.B) {
	table, err := network.BuildTable(gridNetwork(50))
	if err != nil {
		b.Fatal(err)
	}
	matcher := matching.NewLocalMatcher(table, 7)

	rng := rand.New(rand.NewSource(7))
	line := make(orb.LineString, 200)
	for i := range line {
		// вдоль горизонтали с шумом GPS ~10 м
		line[i] = orb.Point{2.3 + float64(i)*0.0002, 42.51 + (rng.Float64()-0.5)*0.0002}
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := matcher.Match(ctx, line, matching.DefaultPresets[0]); err != nil {
			b.Fatal(err)
		}
	}
}
