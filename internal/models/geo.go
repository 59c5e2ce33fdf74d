package models

import (
	"fmt"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
)

// GeoPoint представляет географическую точку
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// Point возвращает точку orb (lon, lat)
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// Bounds прямоугольные границы зоны. Границы включительные
type Bounds struct {
	LonMin float64 `json:"lon_min" yaml:"lon_min"`
	LonMax float64 `json:"lon_max" yaml:"lon_max"`
	LatMin float64 `json:"lat_min" yaml:"lat_min"`
	LatMax float64 `json:"lat_max" yaml:"lat_max"`
}

// Validate проверяет корректность границ
func (b Bounds) Validate() error {
	if err := (GeoPoint{Latitude: b.LatMin, Longitude: b.LonMin}).Validate(); err != nil {
		return fmt.Errorf("southwest: %w", err)
	}
	if err := (GeoPoint{Latitude: b.LatMax, Longitude: b.LonMax}).Validate(); err != nil {
		return fmt.Errorf("northeast: %w", err)
	}
	if b.LatMin > b.LatMax {
		return fmt.Errorf("lat_min must not exceed lat_max")
	}
	if b.LonMin > b.LonMax {
		return fmt.Errorf("lon_min must not exceed lon_max")
	}
	return nil
}

// Contains проверяет, содержится ли точка в границах (включая край)
func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.LonMin && lon <= b.LonMax &&
		lat >= b.LatMin && lat <= b.LatMax
}

// Zone именованная зона обработки
type Zone struct {
	Name   string `json:"name" yaml:"name"`
	Bounds Bounds `json:"bounds" yaml:"bounds"`
}
