package filter

import (
	"github.com/flybeeper/trail-conflation/internal/models"
)

// PlausibilityFilter проверяет итоговые кинематические величины трека
type PlausibilityFilter struct {
	limits  KinematicLimits
	minYear int
}

// NewPlausibilityFilter создает фильтр правдоподобия. minYear <= 0 отключает проверку даты
func NewPlausibilityFilter(limits KinematicLimits, minYear int) *PlausibilityFilter {
	return &PlausibilityFilter{limits: limits, minYear: minYear}
}

// CheckTotals отбраковывает трек с неправдоподобными итогами
func (f *PlausibilityFilter) CheckTotals(t models.TrackTotals) *models.Rejection {
	l := f.limits
	switch {
	case t.TotalTime < l.MinTotalTime || t.TotalTime > l.MaxTotalTime:
		return models.Reject(models.CodeKinematicBounds, "total time %.2f min", t.TotalTime)
	case t.TotalDistance < l.MinTotalDistance || t.TotalDistance > l.MaxTotalDistance:
		return models.Reject(models.CodeKinematicBounds, "total distance %.2f km", t.TotalDistance)
	case t.AverageSpeed < l.MinMeanSpeed || t.AverageSpeed > l.MaxMeanSpeed:
		return models.Reject(models.CodeKinematicBounds, "mean speed %.4f m/s", t.AverageSpeed)
	case t.ElevationGain > l.MaxElevationGain:
		return models.Reject(models.CodeKinematicBounds, "elevation gain %.2f m", t.ElevationGain)
	}
	return nil
}

// CheckYear отбраковывает треки старше minYear. Треки без даты проходят
func (f *PlausibilityFilter) CheckYear(summary *models.TrackSummary) *models.Rejection {
	if f.minYear <= 0 || !summary.HasDate() {
		return nil
	}
	if summary.Year < f.minYear {
		return models.Reject(models.CodeKinematicBounds, "recorded in %d", summary.Year)
	}
	return nil
}
