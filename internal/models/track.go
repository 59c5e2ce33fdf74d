package models

import (
	"time"

	"github.com/paulmach/orb"
)

// RawPoint исходная точка трека. Неизменяема после чтения
type RawPoint struct {
	Longitude   float64 `json:"lon"`
	Latitude    float64 `json:"lat"`
	Elevation   float64 `json:"elev"` // метры
	TimestampMs int64   `json:"ts"`   // epoch ms
}

// Time возвращает метку времени точки
func (p RawPoint) Time() time.Time {
	return time.UnixMilli(p.TimestampMs).UTC()
}

// Point возвращает точку orb (lon, lat)
func (p RawPoint) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Waypoint точка интереса из исходного файла
type Waypoint struct {
	POIID     string  `json:"poi_id,omitempty"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
	Elevation float64 `json:"elev"`
	Photo     string  `json:"photo,omitempty"`
}

// TrackMeta свободные метаданные трека
type TrackMeta struct {
	Title      string `json:"title"`
	User       string `json:"user"`
	URL        string `json:"url"`
	Difficulty string `json:"difficulty"`
	DateText   string `json:"date"`
}

// RawTrack трек в том виде, в котором он прочитан из файла
type RawTrack struct {
	ID           string     `json:"track_id"`
	ActivityType string     `json:"activity_type"`
	Points       []RawPoint `json:"points"`
	Meta         TrackMeta  `json:"meta"`
	Waypoints    []Waypoint `json:"waypoints,omitempty"`
}

// LineString строит геометрию из последовательности (lon, lat)
func (t *RawTrack) LineString() orb.LineString {
	ls := make(orb.LineString, len(t.Points))
	for i, p := range t.Points {
		ls[i] = orb.Point{p.Longitude, p.Latitude}
	}
	return ls
}

// ValidatedTrack принятый валидатором трек
type ValidatedTrack struct {
	*RawTrack
	Zone string `json:"zone"`
}
