package filter

import (
	"strings"

	"github.com/flybeeper/trail-conflation/internal/models"
)

// ActivityRule проверяет тип активности
type ActivityRule struct {
	expected string
}

// NewActivityRule создает правило типа активности
func NewActivityRule(expected string) *ActivityRule {
	return &ActivityRule{expected: expected}
}

func (r *ActivityRule) Check(track *models.RawTrack) *models.Rejection {
	if strings.TrimSpace(track.ActivityType) != r.expected {
		return models.Reject(models.CodeWrongActivity, "got %q", track.ActivityType)
	}
	return nil
}

func (r *ActivityRule) Name() string { return "activity" }

func (r *ActivityRule) Description() string {
	return "Rejects tracks whose activity type differs from " + r.expected
}

// BoundsRule проверяет что все точки внутри зоны
type BoundsRule struct {
	bounds models.Bounds
}

// NewBoundsRule создает правило границ зоны
func NewBoundsRule(bounds models.Bounds) *BoundsRule {
	return &BoundsRule{bounds: bounds}
}

func (r *BoundsRule) Check(track *models.RawTrack) *models.Rejection {
	for i, p := range track.Points {
		if !r.bounds.Contains(p.Longitude, p.Latitude) {
			return models.Reject(models.CodeOutOfBounds, "point %d at (%.5f, %.5f)", i+1, p.Longitude, p.Latitude)
		}
	}
	return nil
}

func (r *BoundsRule) Name() string { return "bounds" }

func (r *BoundsRule) Description() string {
	return "Rejects tracks with any point outside the zone rectangle"
}

// MinPointsRule проверяет минимальное число точек
type MinPointsRule struct {
	min int
}

// NewMinPointsRule создает правило минимального числа точек
func NewMinPointsRule(min int) *MinPointsRule {
	return &MinPointsRule{min: min}
}

func (r *MinPointsRule) Check(track *models.RawTrack) *models.Rejection {
	if len(track.Points) < r.min {
		return models.Reject(models.CodeTooFewPoints, "%d points", len(track.Points))
	}
	return nil
}

func (r *MinPointsRule) Name() string { return "min_points" }

func (r *MinPointsRule) Description() string {
	return "Rejects tracks with too few points"
}

// JumpRule проверяет расстояние между соседними точками
type JumpRule struct {
	maxMeters float64
	distance  DistanceFunc
}

// NewJumpRule создает правило максимального прыжка
func NewJumpRule(maxMeters float64, distance DistanceFunc) *JumpRule {
	return &JumpRule{maxMeters: maxMeters, distance: distance}
}

func (r *JumpRule) Check(track *models.RawTrack) *models.Rejection {
	for i := 1; i < len(track.Points); i++ {
		d := r.distance(track.Points[i-1].Point(), track.Points[i].Point())
		if d > r.maxMeters {
			return models.Reject(models.CodeGPSJump, "%.2f m between points %d and %d", d, i, i+1)
		}
	}
	return nil
}

func (r *JumpRule) Name() string { return "gps_jump" }

func (r *JumpRule) Description() string {
	return "Rejects tracks with a consecutive-point jump above the limit"
}

// MinLengthRule проверяет общую длину трека
type MinLengthRule struct {
	minMeters float64
	distance  DistanceFunc
}

// NewMinLengthRule создает правило минимальной длины
func NewMinLengthRule(minMeters float64, distance DistanceFunc) *MinLengthRule {
	return &MinLengthRule{minMeters: minMeters, distance: distance}
}

func (r *MinLengthRule) Check(track *models.RawTrack) *models.Rejection {
	total := 0.0
	for i := 1; i < len(track.Points); i++ {
		total += r.distance(track.Points[i-1].Point(), track.Points[i].Point())
	}
	if total < r.minMeters {
		return models.Reject(models.CodeTooShort, "%.2f m", total)
	}
	return nil
}

func (r *MinLengthRule) Name() string { return "min_length" }

func (r *MinLengthRule) Description() string {
	return "Rejects tracks shorter than the minimum length"
}
