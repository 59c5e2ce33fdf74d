package models

import "github.com/paulmach/orb"

// KinematicPoint точка с производными кинематическими полями
type KinematicPoint struct {
	ID           int     `json:"id"` // 1..N без пропусков
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	Elevation    float64 `json:"elev"`
	ElevDiff     float64 `json:"elev_diff"`
	DistDiff     float64 `json:"dist_diff"` // м
	TimeDiff     float64 `json:"time_diff"` // с
	Speed        float64 `json:"speed"`     // м/с
	Pace         float64 `json:"pace"`      // мин/км, 0 для стоящих точек
	ElapElevGain float64 `json:"elap_elev_gain"`
	ElapDist     float64 `json:"elap_dist"` // км
	ElapTime     float64 `json:"elap_time"` // мин
	EdgeID       int64   `json:"edge_id,omitempty"`
	MatchedLat   float64 `json:"osm_lat,omitempty"` // координата после привязки к сети
	MatchedLon   float64 `json:"osm_lon,omitempty"`
}

// KinematicSequence упорядоченная последовательность точек трека
type KinematicSequence []KinematicPoint

// TrackTotals итоговые значения по всему треку
type TrackTotals struct {
	TotalTime     float64 `json:"total_time"`     // мин
	TotalDistance float64 `json:"total_distance"` // км
	AverageSpeed  float64 `json:"average_speed"`  // м/с
	AveragePace   float64 `json:"average_pace"`   // мин/км
	ElevationGain float64 `json:"elevation_gain"` // м
}

// Last возвращает последнюю точку последовательности
func (s KinematicSequence) Last() KinematicPoint {
	if len(s) == 0 {
		return KinematicPoint{}
	}
	return s[len(s)-1]
}

// Speeds возвращает скорости по точкам
func (s KinematicSequence) Speeds() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Speed
	}
	return out
}

// Paces возвращает темп по точкам
func (s KinematicSequence) Paces() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Pace
	}
	return out
}

// EdgeIDs возвращает метки ребер по точкам
func (s KinematicSequence) EdgeIDs() []int64 {
	out := make([]int64, len(s))
	for i := range s {
		out[i] = s[i].EdgeID
	}
	return out
}

// LineString геометрия точек с индексами [from, to] включительно (0-based)
func (s KinematicSequence) LineString(from, to int) orb.LineString {
	if from < 0 {
		from = 0
	}
	if to >= len(s) {
		to = len(s) - 1
	}
	if to < from {
		return orb.LineString{}
	}
	ls := make(orb.LineString, 0, to-from+1)
	for i := from; i <= to; i++ {
		ls = append(ls, orb.Point{s[i].Longitude, s[i].Latitude})
	}
	return ls
}
