package benchmarks

// Бенчмарки стадий конвейера на синтетическом треке
//
// Ожидаемые результаты:
// - ParseJSON (3000 точек): < 2ms
// - Derive (3000 точек): < 1ms
// - Segment (3000 точек): < 1ms
// - Aggregate (10k вкладов): < 5ms

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/flybeeper/trail-conflation/internal/aggregate"
	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/ingest"
	"github.com/flybeeper/trail-conflation/internal/kinematics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/network"
	"github.com/flybeeper/trail-conflation/internal/segment"
)

// syntheticExport JSON экспорт трека из n точек с интервалом 10 с
func syntheticExport(n int) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"activity":{"name":"Senderisme"},"title":"bench","date-up":"3 d'abril de 2020","coordinates":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "[%.6f,%.6f,%.1f,%d]", 2.3+float64(i)*0.0001, 42.5, 1000+float64(i%50), 1585900000000+int64(i)*10_000)
	}
	buf.WriteString(`]}`)
	return buf.Bytes()
}

func syntheticPoints(n int) []models.RawPoint {
	points := make([]models.RawPoint, n)
	for i := range points {
		points[i] = models.RawPoint{
			Longitude:   2.3 + float64(i)*0.0001,
			Latitude:    42.5,
			Elevation:   1000 + float64(i%50),
			TimestampMs: 1585900000000 + int64(i)*10_000,
		}
	}
	return points
}

func BenchmarkParseJSON(b *testing.B) {
	for _, n := range []int{300, 3000} {
		data := syntheticExport(n)
		b.Run(fmt.Sprintf("%dpoints", n), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ingest.ParseJSON("bench", data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDerive(b *testing.B) {
	deriver := kinematics.NewDeriver(filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), 2012))
	points := syntheticPoints(3000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := deriver.Derive(points); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSegment(b *testing.B) {
	deriver := kinematics.NewDeriver(filter.NewPlausibilityFilter(filter.DefaultKinematicLimits(), 2012))
	seq, _, _, err := deriver.Derive(syntheticPoints(3000))
	if err != nil {
		b.Fatal(err)
	}
	// смена ребра каждые 25 точек
	for i := range seq {
		seq[i].EdgeID = int64(i/25 + 1)
	}

	segmenter := segment.NewSegmenter()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := segmenter.Segment(seq); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAggregate(b *testing.B) {
	table, err := network.BuildTable(gridNetwork(50))
	if err != nil {
		b.Fatal(err)
	}
	aggregator := aggregate.NewNetworkAggregator(table)

	contributions := make([]models.EdgeContribution, 0, 10_000)
	for i := 0; i < cap(contributions); i++ {
		contributions = append(contributions, models.EdgeContribution{
			TrackID: fmt.Sprintf("t%d", i%400),
			EdgeID:  int64(i%table.Len() + 1),
			AvgPace: 12 + float64(i%17),
		})
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aggregator.Aggregate(contributions); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCorrectOutliers(b *testing.B) {
	paces := make([]float64, 5000)
	for i := range paces {
		paces[i] = 10 + float64(i%30)
	}
	paces[100] = 400

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = aggregate.CorrectOutliers(paces)
	}
}
