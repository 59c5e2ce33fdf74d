package aggregate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/flybeeper/trail-conflation/internal/models"
)

// PartitionKind is the attribute a statistics table is filtered on.
type PartitionKind string

const (
	PartitionAll        PartitionKind = "all"
	PartitionDifficulty PartitionKind = "difficulty"
	PartitionYear       PartitionKind = "year"
	PartitionMonth      PartitionKind = "month"
	PartitionSeason     PartitionKind = "season"
	PartitionWeekday    PartitionKind = "weekday"
	PartitionWeather    PartitionKind = "weather"
	PartitionDistance   PartitionKind = "distance"
	PartitionTime       PartitionKind = "time"
	PartitionPace       PartitionKind = "pace"
	PartitionElevation  PartitionKind = "elevation"
)

// PartitionKinds in enumeration order.
var PartitionKinds = []PartitionKind{
	PartitionAll, PartitionDifficulty, PartitionYear, PartitionMonth, PartitionSeason,
	PartitionWeekday, PartitionWeather, PartitionDistance, PartitionTime, PartitionPace, PartitionElevation,
}

// Partition is a subset of accepted tracks sharing one attribute value.
type Partition struct {
	Kind     PartitionKind
	Value    string
	TrackIDs []string
}

var (
	slugSeparators = regexp.MustCompile(`[^\p{Ll}0-9]+`)
	namePattern    = regexp.MustCompile(`^[\p{Ll}0-9_]+$`)
)

// Slug lowercases v and collapses every run of other characters into a
// single underscore, so "Rain, light" becomes rain_light. The result always
// satisfies ValidName unless it is empty.
func Slug(v string) string {
	return strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(v), "_"), "_")
}

// Name is the table name, e.g. all_edges, difficulty_very_difficult, year_2020.
func (p Partition) Name() string {
	if p.Kind == PartitionAll {
		return "all_edges"
	}
	return string(p.Kind) + "_" + Slug(p.Value)
}

// FileName is the CSV file name of the table.
func (p Partition) FileName() string {
	return p.Name() + ".csv"
}

// ValidName reports whether name can be a partition table name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// value returns the attribute value of a summary; empty means the track is
// not part of any partition of that kind.
func value(kind PartitionKind, s *models.TrackSummary) string {
	switch kind {
	case PartitionAll:
		return "all"
	case PartitionDifficulty:
		return s.Difficulty
	case PartitionYear:
		if s.Year == 0 {
			return ""
		}
		return strconv.Itoa(s.Year)
	case PartitionMonth:
		return s.Month
	case PartitionSeason:
		return s.Season
	case PartitionWeekday:
		return s.Weekday
	case PartitionWeather:
		return s.WeatherCondition
	case PartitionDistance:
		return strconv.Itoa(models.DistanceGroups.Group(s.TotalDistance))
	case PartitionTime:
		return strconv.Itoa(models.TimeGroups.Group(s.TotalTime))
	case PartitionPace:
		return strconv.Itoa(models.TrackPaceGroups.Group(s.AveragePace))
	case PartitionElevation:
		return strconv.Itoa(models.ElevationGroups.Group(s.ElevationGain))
	}
	return ""
}

// Enumerate lists the partitions present in the summaries: kinds in
// PartitionKinds order, values in order of first appearance. Values with the
// same slug ("Rain" and "rain") share one partition, which keeps the value
// seen first; values without a slug are skipped. Track ids are unique within
// a partition.
func Enumerate(summaries []models.TrackSummary) []Partition {
	var out []Partition
	for _, kind := range PartitionKinds {
		index := make(map[string]int)
		seen := make(map[string]map[string]struct{})
		var parts []Partition

		for i := range summaries {
			s := &summaries[i]
			v := value(kind, s)
			if v == "" {
				continue
			}
			key := Slug(v)
			if key == "" {
				continue
			}
			pos, ok := index[key]
			if !ok {
				pos = len(parts)
				index[key] = pos
				seen[key] = make(map[string]struct{})
				parts = append(parts, Partition{Kind: kind, Value: v})
			}
			if _, dup := seen[key][s.TrackID]; dup {
				continue
			}
			seen[key][s.TrackID] = struct{}{}
			parts[pos].TrackIDs = append(parts[pos].TrackIDs, s.TrackID)
		}
		out = append(out, parts...)
	}
	return out
}
