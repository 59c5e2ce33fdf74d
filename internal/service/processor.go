package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/flybeeper/trail-conflation/internal/filter"
	"github.com/flybeeper/trail-conflation/internal/kinematics"
	"github.com/flybeeper/trail-conflation/internal/matching"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/internal/segment"
	"github.com/flybeeper/trail-conflation/pkg/utils"
)

// Этапы обработки трека (метка stage метрики длительности)
const (
	StageValidate = "validate"
	StageMatch    = "match"
	StageDerive   = "derive"
	StageAssign   = "assign"
	StageSegment  = "segment"
	StageWrite    = "write"
)

// Outcome результат обработки одного трека. Ровно одно из Summary и Rejection не nil
type Outcome struct {
	TrackID     string
	Summary     *models.TrackSummary
	MatchConfig *models.MatchConfigRecord
	Segments    *models.TrackSegments
	Rejection   *models.Rejection
}

// Accepted принят ли трек
func (o *Outcome) Accepted() bool {
	return o.Rejection == nil
}

// TrackProcessor конвейер одного трека: валидация, привязка к сети, кинематика,
// назначение ребер, сегментация и запись таблиц трека
type TrackProcessor struct {
	zone         models.Zone
	validator    *filter.ValidationChain
	matcher      *matching.MapMatcher
	deriver      *kinematics.Deriver
	assigner     *matching.EdgeAssigner
	segmenter    *segment.Segmenter
	plausibility *filter.PlausibilityFilter
	weather      WeatherLookup
	store        *repository.TrackStore
	logger       *utils.Logger
}

// ProcessorDeps зависимости TrackProcessor
type ProcessorDeps struct {
	Zone         models.Zone
	Validator    *filter.ValidationChain
	Matcher      *matching.MapMatcher
	Assigner     *matching.EdgeAssigner
	Plausibility *filter.PlausibilityFilter
	Weather      WeatherLookup
	Store        *repository.TrackStore
	Logger       *utils.Logger
}

// NewTrackProcessor создает процессор. Компоненты без состояния создаются здесь
func NewTrackProcessor(deps ProcessorDeps) *TrackProcessor {
	weather := deps.Weather
	if weather == nil {
		weather = NoWeather{}
	}
	return &TrackProcessor{
		zone:         deps.Zone,
		validator:    deps.Validator,
		matcher:      deps.Matcher,
		deriver:      kinematics.NewDeriver(deps.Plausibility),
		assigner:     deps.Assigner,
		segmenter:    segment.NewSegmenter(),
		plausibility: deps.Plausibility,
		weather:      weather,
		store:        deps.Store,
		logger:       deps.Logger,
	}
}

// Zone зона процессора
func (p *TrackProcessor) Zone() models.Zone {
	return p.zone
}

// Process обрабатывает трек. Отбраковка возвращается в Outcome, ошибка означает
// сбой ввода-вывода или отмену ctx; такой трек не считается обработанным
func (p *TrackProcessor) Process(ctx context.Context, raw *models.RawTrack) (*Outcome, error) {
	out := &Outcome{TrackID: raw.ID}
	logger := p.logger.WithField("track_id", raw.ID).WithField("zone", p.zone.Name)

	stage := time.Now()
	validated, rejection := p.validator.Validate(raw)
	observeStage(StageValidate, stage)
	if rejection != nil {
		return p.discard(out, rejection, logger), nil
	}

	stage = time.Now()
	match, rejection, err := p.matcher.Match(ctx, validated)
	observeStage(StageMatch, stage)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return p.discard(out, rejection, logger), nil
	}

	stage = time.Now()
	seq, totals, rejection, err := p.deriver.Derive(raw.Points)
	observeStage(StageDerive, stage)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", raw.ID, err)
	}
	if rejection != nil {
		return p.discard(out, rejection, logger), nil
	}

	summary := BuildSummary(p.zone.Name, raw, totals, p.weather)
	if rejection := p.plausibility.CheckYear(summary); rejection != nil {
		return p.discard(out, rejection, logger), nil
	}

	stage = time.Now()
	seq, rejection = p.assigner.Assign(seq, match.Path)
	observeStage(StageAssign, stage)
	if rejection != nil {
		return p.discard(out, rejection, logger), nil
	}

	stage = time.Now()
	segments, err := p.segmenter.Segment(seq)
	observeStage(StageSegment, stage)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", raw.ID, err)
	}
	for _, kind := range models.SegmentKinds {
		metrics.SegmentsTotal.WithLabelValues(string(kind)).Add(float64(len(segments.ByKind(kind))))
	}

	stage = time.Now()
	if err := p.write(raw, match, seq, segments); err != nil {
		return nil, fmt.Errorf("track %s: %w", raw.ID, err)
	}
	observeStage(StageWrite, stage)

	out.Summary = summary
	out.Segments = segments
	out.MatchConfig = &models.MatchConfigRecord{
		Zone:     p.zone.Name,
		TrackID:  raw.ID,
		K:        match.Preset.K,
		Radius:   match.Preset.Radius,
		GPSError: match.Preset.GPSError,
	}

	metrics.TracksProcessed.WithLabelValues(p.zone.Name, "accepted").Inc()
	logger.WithFields(map[string]interface{}{
		"preset":      match.Preset.Name(),
		"distance_km": totals.TotalDistance,
		"km":          len(segments.Kilometers),
		"pace_zones":  len(segments.PaceZones),
		"edge_runs":   len(segments.EdgeRuns),
	}).Info("Track accepted")

	return out, nil
}

// write сохраняет таблицы трека. Таблицы сегментов пишутся последними:
// по ним агрегатор находит треки
func (p *TrackProcessor) write(raw *models.RawTrack, match *matching.MatchResult, seq models.KinematicSequence, segments *models.TrackSegments) error {
	zone := p.zone.Name
	if err := p.store.WriteMatched(zone, raw.ID, match.Path.Points); err != nil {
		return fmt.Errorf("matched table: %w", err)
	}
	if err := p.store.WritePoints(zone, raw.ID, seq); err != nil {
		return fmt.Errorf("points table: %w", err)
	}
	if err := p.store.WriteWaypoints(zone, raw.ID, raw.Waypoints); err != nil {
		return fmt.Errorf("waypoints table: %w", err)
	}
	return p.store.WriteSegments(zone, raw.ID, segments)
}

func (p *TrackProcessor) discard(out *Outcome, rejection *models.Rejection, logger *utils.Logger) *Outcome {
	out.Rejection = rejection
	metrics.TracksProcessed.WithLabelValues(p.zone.Name, "discarded").Inc()
	metrics.TracksDiscarded.WithLabelValues(p.zone.Name, strconv.Itoa(int(rejection.Code))).Inc()
	logger.WithField("code", int(rejection.Code)).
		WithField("reason", rejection.Reason).
		Info("Track discarded")
	return out
}

func observeStage(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
