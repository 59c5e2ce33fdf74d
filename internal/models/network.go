package models

import "github.com/paulmach/orb"

// EdgeKey неупорядоченная пара концов ребра, хранится в каноническом порядке U <= V
type EdgeKey struct {
	U int64
	V int64
}

// NewEdgeKey создает ключ с отсортированными концами
func NewEdgeKey(u, v int64) EdgeKey {
	if u > v {
		u, v = v, u
	}
	return EdgeKey{U: u, V: v}
}

// NetworkEdge статическое ребро сети троп
type NetworkEdge struct {
	ID       int64          `json:"id"`
	U        int64          `json:"u"`
	V        int64          `json:"v"`
	Geometry orb.LineString `json:"geometry"`
}

// Key возвращает канонический ключ ребра
func (e NetworkEdge) Key() EdgeKey {
	return NewEdgeKey(e.U, e.V)
}

// EdgeContribution вклад одного edge-run сегмента трека в статистику ребра
type EdgeContribution struct {
	TrackID string  `json:"track_id"`
	EdgeID  int64   `json:"edge_id"`
	AvgPace float64 `json:"avg_pace"`
}

// EdgeStatistic статистика ребра по выбранному подмножеству треков
type EdgeStatistic struct {
	EdgeID      int64          `json:"edge_id"`
	AvgPace     float64        `json:"avg_pace"`
	TotalTracks int            `json:"total_tracks"`
	TrackIDs    []string       `json:"list_tracks"`
	Geometry    orb.LineString `json:"geometry"`
}
