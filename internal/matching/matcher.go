// Package matching snaps validated tracks onto the trail network and labels
// kinematic points with network edge ids.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/paulmach/orb"
)

var (
	// ErrUnmatched prefixes the reason of tracks the matcher failed on.
	ErrUnmatched = errors.New("track could not be matched to the network")
	// ErrNoPresetMatched is the reason recorded when every preset returned an empty path.
	ErrNoPresetMatched = errors.New("no preset produced a matched path")
)

// Params is one map-matching parameterization. Radius and GPSError are in
// degrees of the network's coordinate system.
type Params struct {
	K        int     `json:"k"`
	Radius   float64 `json:"radius"`
	GPSError float64 `json:"gps_error"`
}

// Name is a short label used in metrics and logs.
func (p Params) Name() string {
	return fmt.Sprintf("k%d", p.K)
}

// DefaultPresets are tried in order; the first non-empty path wins.
var DefaultPresets = []Params{
	{K: 2, Radius: 0.001, GPSError: 0.001},
	{K: 3, Radius: 0.001, GPSError: 0.001},
	{K: 4, Radius: 0.001, GPSError: 0.001},
}

// MatchedPoint is the matcher's answer for one raw point: the endpoints of
// the chosen network edge and the point snapped onto it.
type MatchedPoint struct {
	U     int64
	V     int64
	Point orb.Point
}

// MatchedPath is the output of a NetworkMatcher.
type MatchedPath struct {
	Geometry orb.LineString
	Points   []MatchedPoint
}

// Empty reports whether the matcher found nothing.
func (p *MatchedPath) Empty() bool {
	return p == nil || len(p.Geometry) == 0
}

// NetworkMatcher matches a line geometry against the trail network.
type NetworkMatcher interface {
	Match(ctx context.Context, line orb.LineString, params Params) (*MatchedPath, error)
	Name() string
}

// MatchResult is a successful match together with the preset that produced it.
type MatchResult struct {
	Path   *MatchedPath
	Preset Params
}

// MapMatcher tries a fixed, ordered list of presets against a NetworkMatcher.
type MapMatcher struct {
	matcher NetworkMatcher
	presets []Params
	timeout time.Duration
	logger  *utils.Logger
}

// NewMapMatcher creates a map matcher. A zero timeout disables the per-track deadline.
func NewMapMatcher(matcher NetworkMatcher, presets []Params, timeout time.Duration, logger *utils.Logger) *MapMatcher {
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	return &MapMatcher{
		matcher: matcher,
		presets: presets,
		timeout: timeout,
		logger:  logger,
	}
}

// Presets returns the presets in the order they are tried.
func (m *MapMatcher) Presets() []Params {
	return m.presets
}

// Match returns the first non-empty matched path. A matcher error or the
// per-track timeout ends the search immediately with a rejection; only
// cancellation of ctx itself is returned as an error.
func (m *MapMatcher) Match(ctx context.Context, track *models.ValidatedTrack) (*MatchResult, *models.Rejection, error) {
	start := time.Now()
	defer func() {
		metrics.MatchDuration.WithLabelValues(m.matcher.Name()).Observe(time.Since(start).Seconds())
	}()

	matchCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		matchCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	line := track.LineString()
	for _, preset := range m.presets {
		path, err := m.matcher.Match(matchCtx, line, preset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			metrics.MatchPresets.WithLabelValues("none").Inc()
			if errors.Is(err, context.DeadlineExceeded) || matchCtx.Err() != nil {
				m.logger.WithField("track_id", track.ID).
					WithField("timeout", m.timeout.String()).
					Warn("Map matching timed out")
				return nil, models.Reject(models.CodeMatchFailed, "timeout after %s", m.timeout), nil
			}
			m.logger.WithField("track_id", track.ID).
				WithField("preset", preset.Name()).
				WithError(err).
				Warn("Map matcher failed")
			return nil, models.Reject(models.CodeMatchFailed, "%v: %v", ErrUnmatched, err), nil
		}

		if !path.Empty() {
			metrics.MatchPresets.WithLabelValues(preset.Name()).Inc()
			m.logger.WithField("track_id", track.ID).
				WithField("preset", preset.Name()).
				WithField("matched_points", len(path.Points)).
				Debug("Track matched")
			return &MatchResult{Path: path, Preset: preset}, nil, nil
		}
	}

	metrics.MatchPresets.WithLabelValues("none").Inc()
	return nil, models.Reject(models.CodeMatchFailed, "%v", ErrNoPresetMatched), nil
}
