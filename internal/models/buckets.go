package models

import "sort"

// Buckets таблица групп: отсортированные границы -> номер группы 1..len(Breaks)+1.
// Значение v попадает в первую группу i, для которой v < Breaks[i]
type Buckets struct {
	Name   string
	Breaks []float64
}

// Group возвращает номер группы (с 1)
func (b Buckets) Group(v float64) int {
	return sort.Search(len(b.Breaks), func(i int) bool { return v < b.Breaks[i] }) + 1
}

// Count число групп
func (b Buckets) Count() int {
	return len(b.Breaks) + 1
}

var (
	// SegmentPaceBuckets группы среднего темпа сегмента, мин/км
	SegmentPaceBuckets = Buckets{Name: "pace_group", Breaks: []float64{15, 30, 45}}
	// UphillBuckets группы процента подъема сегмента
	UphillBuckets = Buckets{Name: "uphill_group", Breaks: []float64{7.5, 15, 22.5}}

	// DistanceGroups общая дистанция трека, км
	DistanceGroups = Buckets{Name: "distance", Breaks: []float64{5, 10, 15, 20, 25, 30}}
	// TimeGroups общее время трека, мин
	TimeGroups = Buckets{Name: "time", Breaks: []float64{60, 120, 180, 240, 300, 360}}
	// TrackPaceGroups средний темп трека, мин/км
	TrackPaceGroups = Buckets{Name: "pace", Breaks: []float64{20, 40, 60}}
	// ElevationGroups общий набор высоты, м
	ElevationGroups = Buckets{Name: "elevation", Breaks: []float64{500, 1000, 1500, 2000}}
)
