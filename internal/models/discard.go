package models

import (
	"fmt"
	"time"
)

// DiscardCode код причины отбраковки трека (1-7)
type DiscardCode int

const (
	CodeWrongActivity   DiscardCode = 1
	CodeOutOfBounds     DiscardCode = 2
	CodeTooFewPoints    DiscardCode = 3
	CodeGPSJump         DiscardCode = 4
	CodeTooShort        DiscardCode = 5
	CodeMatchFailed     DiscardCode = 6
	CodeKinematicBounds DiscardCode = 7
)

// AllDiscardCodes коды в порядке возрастания
var AllDiscardCodes = []DiscardCode{
	CodeWrongActivity, CodeOutOfBounds, CodeTooFewPoints, CodeGPSJump,
	CodeTooShort, CodeMatchFailed, CodeKinematicBounds,
}

// String возвращает текстовое описание кода
func (c DiscardCode) String() string {
	switch c {
	case CodeWrongActivity:
		return "wrong activity type"
	case CodeOutOfBounds:
		return "out of bounds"
	case CodeTooFewPoints:
		return "too few points"
	case CodeGPSJump:
		return "GPS jump too large"
	case CodeTooShort:
		return "track too short"
	case CodeMatchFailed:
		return "map matching failed"
	case CodeKinematicBounds:
		return "kinematic bounds rejected"
	default:
		return fmt.Sprintf("unknown code %d", int(c))
	}
}

// Rejection результат отбраковки трека
type Rejection struct {
	Code   DiscardCode `json:"code"`
	Reason string      `json:"reason"`
}

// Reject создает отбраковку с уточнением причины
func Reject(code DiscardCode, format string, args ...interface{}) *Rejection {
	reason := code.String()
	if format != "" {
		reason = fmt.Sprintf("%s: %s", reason, fmt.Sprintf(format, args...))
	}
	return &Rejection{Code: code, Reason: reason}
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected (%d): %s", int(r.Code), r.Reason)
}

// DiscardRecord запись журнала отбраковки
type DiscardRecord struct {
	Zone       string      `json:"zone"`
	TrackID    string      `json:"track_id"`
	Code       DiscardCode `json:"error_type"`
	Reason     string      `json:"reason"`
	RunID      string      `json:"run_id"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// MatchConfigRecord пресет, с которым трек был сопоставлен с сетью
type MatchConfigRecord struct {
	Zone     string  `json:"zone"`
	TrackID  string  `json:"track_id"`
	K        int     `json:"k"`
	Radius   float64 `json:"radius"`
	GPSError float64 `json:"gps_error"`
}
