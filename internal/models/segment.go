package models

import "github.com/paulmach/orb"

// SegmentKind тип сегментации трека
type SegmentKind string

const (
	SegmentKilometer SegmentKind = "km"
	SegmentPaceZone  SegmentKind = "pace"
	SegmentEdgeRun   SegmentKind = "edges"
)

// SegmentKinds все типы сегментации в порядке записи
var SegmentKinds = []SegmentKind{SegmentKilometer, SegmentPaceZone, SegmentEdgeRun}

// Valid проверяет известен ли тип сегментации
func (k SegmentKind) Valid() bool {
	switch k {
	case SegmentKilometer, SegmentPaceZone, SegmentEdgeRun:
		return true
	}
	return false
}

// Segment агрегированный участок трека.
// [MinPointID, MaxPointID] окно метрик; сегменты одной сегментации покрывают 1..N без пересечений.
// Geometry продолжается до первой точки следующего сегмента.
type Segment struct {
	Kind             SegmentKind    `json:"kind"`
	Label            int64          `json:"label"` // номер км, зона темпа 1-4 или id ребра
	MinPointID       int            `json:"min_point_id"`
	MaxPointID       int            `json:"max_point_id"`
	Distance         float64        `json:"dist"`      // км
	Time             float64        `json:"time"`      // мин
	ElevationGain    float64        `json:"elev_gain"` // м
	AvgPace          float64        `json:"avg_pace"`
	AvgSpeed         float64        `json:"avg_speed"`
	UphillPercentage float64        `json:"uphill_perc"`
	PaceGroup        int            `json:"pace_group"`
	UphillGroup      int            `json:"uphill_group"`
	Geometry         orb.LineString `json:"geometry"`
}

// Span число точек в окне метрик
func (s Segment) Span() int {
	return s.MaxPointID - s.MinPointID + 1
}

// TrackSegments три независимые сегментации одного трека
type TrackSegments struct {
	Kilometers []Segment `json:"km"`
	PaceZones  []Segment `json:"pace"`
	EdgeRuns   []Segment `json:"edges"`
}

// ByKind возвращает сегменты заданного типа
func (t *TrackSegments) ByKind(kind SegmentKind) []Segment {
	switch kind {
	case SegmentKilometer:
		return t.Kilometers
	case SegmentPaceZone:
		return t.PaceZones
	case SegmentEdgeRun:
		return t.EdgeRuns
	}
	return nil
}
