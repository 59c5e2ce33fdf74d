package filter

import (
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/utils"
)

// ValidationChain упорядоченная цепочка правил. Первое нарушенное правило определяет отказ
type ValidationChain struct {
	rules  []TrackRule
	zone   string
	logger *utils.Logger
}

// NewValidationChain создает цепочку правил в фиксированном порядке:
// тип активности, границы, число точек, прыжки, длина
func NewValidationChain(zone string, config *FilterConfig, logger *utils.Logger) *ValidationChain {
	distance := config.distance()

	chain := &ValidationChain{
		rules:  make([]TrackRule, 0, 5),
		zone:   zone,
		logger: logger,
	}
	chain.AddRule(NewActivityRule(config.ActivityType))
	chain.AddRule(NewBoundsRule(config.Bounds))
	chain.AddRule(NewMinPointsRule(config.MinPoints))
	chain.AddRule(NewJumpRule(config.MaxJumpMeters, distance))
	chain.AddRule(NewMinLengthRule(config.MinLengthMeters, distance))

	return chain
}

// AddRule добавляет правило в конец цепочки
func (vc *ValidationChain) AddRule(rule TrackRule) {
	vc.rules = append(vc.rules, rule)
}

// Rules возвращает правила цепочки
func (vc *ValidationChain) Rules() []TrackRule {
	return vc.rules
}

// Validate классифицирует трек. Ровно одно из возвращаемых значений не nil
func (vc *ValidationChain) Validate(track *models.RawTrack) (*models.ValidatedTrack, *models.Rejection) {
	metrics.ValidationChecked.Inc()
	metrics.ValidationTrackPoints.Observe(float64(len(track.Points)))

	for _, rule := range vc.rules {
		if rejection := rule.Check(track); rejection != nil {
			metrics.ValidationRejected.WithLabelValues(rule.Name()).Inc()
			vc.logger.WithField("track_id", track.ID).
				WithField("rule", rule.Name()).
				WithField("code", int(rejection.Code)).
				Debug("Track rejected by validation rule")
			return nil, rejection
		}
	}

	vc.logger.WithField("track_id", track.ID).
		WithField("points", len(track.Points)).
		Debug("Track accepted")

	return &models.ValidatedTrack{RawTrack: track, Zone: vc.zone}, nil
}
