package filter

import (
	"github.com/flybeeper/trail-conflation/internal/geo"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/paulmach/orb"
)

// TrackRule правило валидации исходного трека
type TrackRule interface {
	// Check возвращает nil если трек проходит правило
	Check(track *models.RawTrack) *models.Rejection

	// Name возвращает имя правила
	Name() string

	// Description возвращает описание правила
	Description() string
}

// DistanceFunc расстояние между точками в метрах
type DistanceFunc func(a, b orb.Point) float64

// FilterConfig конфигурация валидации
type FilterConfig struct {
	// Ожидаемый тип активности
	ActivityType string `json:"activity_type"`

	// Границы зоны (включительно)
	Bounds models.Bounds `json:"bounds"`

	// Минимальное число точек (строго меньше - отказ)
	MinPoints int `json:"min_points"`

	// Максимальный прыжок между соседними точками, м (строго больше - отказ)
	MaxJumpMeters float64 `json:"max_jump_meters"`

	// Минимальная длина трека, м
	MinLengthMeters float64 `json:"min_length_meters"`

	// Функция расстояния, по умолчанию геодезическое расстояние
	Distance DistanceFunc `json:"-"`
}

// DefaultFilterConfig возвращает конфигурацию по умолчанию
func DefaultFilterConfig(activityType string, bounds models.Bounds) *FilterConfig {
	return &FilterConfig{
		ActivityType:    activityType,
		Bounds:          bounds,
		MinPoints:       100,
		MaxJumpMeters:   300,
		MinLengthMeters: 1000,
		Distance:        geo.Distance,
	}
}

func (c *FilterConfig) distance() DistanceFunc {
	if c.Distance != nil {
		return c.Distance
	}
	return geo.Distance
}

// KinematicLimits границы правдоподобия для производных величин трека
type KinematicLimits struct {
	MinTotalTime     float64 `json:"min_total_time"` // мин
	MaxTotalTime     float64 `json:"max_total_time"`
	MinTotalDistance float64 `json:"min_total_distance"` // км
	MaxTotalDistance float64 `json:"max_total_distance"`
	MinMeanSpeed     float64 `json:"min_mean_speed"` // м/с
	MaxMeanSpeed     float64 `json:"max_mean_speed"`
	MaxElevationGain float64 `json:"max_elevation_gain"` // м
}

// DefaultKinematicLimits границы для многочасовых пеших походов
func DefaultKinematicLimits() KinematicLimits {
	return KinematicLimits{
		MinTotalTime:     60,
		MaxTotalTime:     720,
		MinTotalDistance: 2,
		MaxTotalDistance: 35,
		MinMeanSpeed:     0.8,
		MaxMeanSpeed:     2.8,
		MaxElevationGain: 5000,
	}
}
