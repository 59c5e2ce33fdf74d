package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/flybeeper/trail-conflation/internal/matching"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/paulmach/orb/encoding/wkt"
)

// Подкаталоги зоны
const (
	TracksDir     = "tracks"
	StatisticsDir = "statistics"
	NetworkDir    = "network"

	matchedTable   = "matched"
	pointsTable    = "points"
	waypointsTable = "waypoints"

	trackListSeparator = ";"
)

var (
	matchedHeader = []string{"point_id", "lon", "lat", "u", "v"}
	pointsHeader  = []string{
		"point_id", "lat", "lon", "elev", "elev_diff", "dist_diff", "time_diff", "speed", "pace",
		"elap_elev_gain", "elap_dist", "elap_time", "osm_lat", "osm_lon", "edge_id",
	}
	waypointsHeader  = []string{"poi_id", "name", "type", "general_type", "lon", "lat", "elevation", "photo"}
	statisticsHeader = []string{"edge_id", "avg_pace", "total_tracks", "list_tracks", "geometry"}
)

// segmentLabelColumns имя колонки метки по типу сегментации
var segmentLabelColumns = map[models.SegmentKind]string{
	models.SegmentKilometer: "km",
	models.SegmentPaceZone:  "pace_zone",
	models.SegmentEdgeRun:   "edge_id",
}

func segmentHeader(kind models.SegmentKind) []string {
	return []string{
		"min_point_id", "max_point_id", segmentLabelColumns[kind], "dist", "time", "elev_gain",
		"avg_pace", "avg_speed", "uphill_perc", "pace_group", "uphill_group", "geometry",
	}
}

// TrackStore хранилище CSV таблиц треков и статистики под корневым каталогом.
// Каждый файл пишется атомарно, поэтому параллельная запись разных треков безопасна
type TrackStore struct {
	root string
}

// NewTrackStore создает хранилище с корнем root (OUTPUT_DIR)
func NewTrackStore(root string) *TrackStore {
	return &TrackStore{root: root}
}

// Root корневой каталог
func (s *TrackStore) Root() string {
	return s.root
}

// NetworkCachePath путь кэша таблицы ребер зоны
func (s *TrackStore) NetworkCachePath(zone string) string {
	return filepath.Join(s.root, zone, NetworkDir, "edges.csv")
}

func (s *TrackStore) trackPath(zone, table, trackID string) string {
	return filepath.Join(s.root, zone, TracksDir, table, trackID+".csv")
}

// StatisticsPath путь таблицы статистики партиции
func (s *TrackStore) StatisticsPath(zone, partition string) string {
	return filepath.Join(s.root, zone, StatisticsDir, partition+".csv")
}

// WriteMatched сохраняет результат привязки: исправленные координаты и концы ребер по точкам
func (s *TrackStore) WriteMatched(zone, trackID string, points []matching.MatchedPoint) error {
	return writeCSV(s.trackPath(zone, matchedTable, trackID), matchedHeader, func(cw *csv.Writer) error {
		for i, p := range points {
			if err := cw.Write([]string{
				strconv.Itoa(i + 1),
				formatFloat(p.Point.Lon()),
				formatFloat(p.Point.Lat()),
				strconv.FormatInt(p.U, 10),
				strconv.FormatInt(p.V, 10),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WritePoints сохраняет кинематическую последовательность с метками ребер
func (s *TrackStore) WritePoints(zone, trackID string, seq models.KinematicSequence) error {
	return writeCSV(s.trackPath(zone, pointsTable, trackID), pointsHeader, func(cw *csv.Writer) error {
		for _, p := range seq {
			if err := cw.Write([]string{
				strconv.Itoa(p.ID),
				formatFloat(p.Latitude), formatFloat(p.Longitude), formatFloat(p.Elevation),
				formatFloat(p.ElevDiff), formatFloat(p.DistDiff), formatFloat(p.TimeDiff),
				formatFloat(p.Speed), formatFloat(p.Pace),
				formatFloat(p.ElapElevGain), formatFloat(p.ElapDist), formatFloat(p.ElapTime),
				formatFloat(p.MatchedLat), formatFloat(p.MatchedLon),
				strconv.FormatInt(p.EdgeID, 10),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSegments сохраняет три сегментации трека в отдельные таблицы
func (s *TrackStore) WriteSegments(zone, trackID string, segments *models.TrackSegments) error {
	for _, kind := range models.SegmentKinds {
		if err := s.writeSegmentTable(zone, trackID, kind, segments.ByKind(kind)); err != nil {
			return fmt.Errorf("%s segments: %w", kind, err)
		}
	}
	return nil
}

func (s *TrackStore) writeSegmentTable(zone, trackID string, kind models.SegmentKind, segs []models.Segment) error {
	return writeCSV(s.trackPath(zone, string(kind), trackID), segmentHeader(kind), func(cw *csv.Writer) error {
		for _, seg := range segs {
			if err := cw.Write([]string{
				strconv.Itoa(seg.MinPointID),
				strconv.Itoa(seg.MaxPointID),
				strconv.FormatInt(seg.Label, 10),
				formatFloat(seg.Distance), formatFloat(seg.Time), formatFloat(seg.ElevationGain),
				formatFloat(seg.AvgPace), formatFloat(seg.AvgSpeed), formatFloat(seg.UphillPercentage),
				strconv.Itoa(seg.PaceGroup), strconv.Itoa(seg.UphillGroup),
				wkt.MarshalString(seg.Geometry),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Segments читает сегментацию трека заданного типа
func (s *TrackStore) Segments(zone, trackID string, kind models.SegmentKind) ([]models.Segment, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown segment kind %q", kind)
	}
	records, err := readCSV(s.trackPath(zone, string(kind), trackID), segmentHeader(kind))
	if err != nil {
		return nil, err
	}

	out := make([]models.Segment, 0, len(records))
	for i, rec := range records {
		seg, err := parseSegment(kind, rec)
		if err != nil {
			return nil, fmt.Errorf("%s/%s row %d: %w", kind, trackID, i+1, err)
		}
		out = append(out, seg)
	}
	return out, nil
}

func parseSegment(kind models.SegmentKind, rec []string) (models.Segment, error) {
	p := fieldParser{rec: rec}
	seg := models.Segment{
		Kind:             kind,
		MinPointID:       p.Int(0),
		MaxPointID:       p.Int(1),
		Label:            p.Int64(2),
		Distance:         p.Float(3),
		Time:             p.Float(4),
		ElevationGain:    p.Float(5),
		AvgPace:          p.Float(6),
		AvgSpeed:         p.Float(7),
		UphillPercentage: p.Float(8),
		PaceGroup:        p.Int(9),
		UphillGroup:      p.Int(10),
	}
	if p.err != nil {
		return seg, p.err
	}
	geom, err := wkt.UnmarshalLineString(rec[11])
	if err != nil {
		return seg, fmt.Errorf("geometry: %w", err)
	}
	seg.Geometry = geom
	return seg, nil
}

// WriteWaypoints сохраняет точки интереса трека с обобщенным типом
func (s *TrackStore) WriteWaypoints(zone, trackID string, waypoints []models.Waypoint) error {
	if len(waypoints) == 0 {
		return nil
	}
	return writeCSV(s.trackPath(zone, waypointsTable, trackID), waypointsHeader, func(cw *csv.Writer) error {
		for _, w := range waypoints {
			if err := cw.Write([]string{
				w.POIID, w.Name, w.Type, models.GeneralWaypointType(w.Type),
				formatFloat(w.Longitude), formatFloat(w.Latitude), formatFloat(w.Elevation),
				w.Photo,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteStatistics сохраняет таблицу статистики партиции
func (s *TrackStore) WriteStatistics(zone, partition string, stats []models.EdgeStatistic) error {
	return writeCSV(s.StatisticsPath(zone, partition), statisticsHeader, func(cw *csv.Writer) error {
		for _, st := range stats {
			if err := cw.Write([]string{
				strconv.FormatInt(st.EdgeID, 10),
				formatFloat(st.AvgPace),
				strconv.Itoa(st.TotalTracks),
				strings.Join(st.TrackIDs, trackListSeparator),
				wkt.MarshalString(st.Geometry),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasStatistics существует ли таблица партиции
func (s *TrackStore) HasStatistics(zone, partition string) bool {
	_, err := os.Stat(s.StatisticsPath(zone, partition))
	return err == nil
}

// Statistics читает таблицу статистики партиции
func (s *TrackStore) Statistics(zone, partition string) ([]models.EdgeStatistic, error) {
	records, err := readCSV(s.StatisticsPath(zone, partition), statisticsHeader)
	if err != nil {
		return nil, err
	}

	out := make([]models.EdgeStatistic, 0, len(records))
	for i, rec := range records {
		p := fieldParser{rec: rec}
		st := models.EdgeStatistic{
			EdgeID:      p.Int64(0),
			AvgPace:     p.Float(1),
			TotalTracks: p.Int(2),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", partition, i+1, p.err)
		}
		if rec[3] != "" {
			st.TrackIDs = strings.Split(rec[3], trackListSeparator)
		}
		if st.Geometry, err = wkt.UnmarshalLineString(rec[4]); err != nil {
			return nil, fmt.Errorf("%s row %d: geometry: %w", partition, i+1, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Partitions список таблиц статистики зоны по имени
func (s *TrackStore) Partitions(zone string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, zone, StatisticsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".csv" {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(names)
	return names, nil
}

// ZoneContributions источник вкладов edge-run сегментов треков одной зоны
type ZoneContributions struct {
	store *TrackStore
	zone  string
}

// Contributions возвращает источник вкладов для зоны
func (s *TrackStore) Contributions(zone string) *ZoneContributions {
	return &ZoneContributions{store: s, zone: zone}
}

// EdgeContributions читает edge-run сегменты трека
func (z *ZoneContributions) EdgeContributions(trackID string) ([]models.EdgeContribution, error) {
	segs, err := z.store.Segments(z.zone, trackID, models.SegmentEdgeRun)
	if err != nil {
		return nil, err
	}
	out := make([]models.EdgeContribution, len(segs))
	for i, seg := range segs {
		out[i] = models.EdgeContribution{TrackID: trackID, EdgeID: seg.Label, AvgPace: seg.AvgPace}
	}
	return out, nil
}

func writeCSV(path string, header []string, rows func(cw *csv.Writer) error) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := rows(cw); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

// readCSV читает таблицу без заголовка. Отсутствующий файл - ErrNotFound
func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 || strings.Join(records[0], ",") != strings.Join(header, ",") {
		return nil, fmt.Errorf("%s: unexpected header", filepath.Base(path))
	}
	return records[1:], nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// fieldParser разбирает поля записи, запоминая первую ошибку
type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) Float(i int) float64 {
	v, err := strconv.ParseFloat(p.rec[i], 64)
	p.fail(i, err)
	return v
}

func (p *fieldParser) Int(i int) int {
	v, err := strconv.Atoi(p.rec[i])
	p.fail(i, err)
	return v
}

func (p *fieldParser) Int64(i int) int64 {
	v, err := strconv.ParseInt(p.rec[i], 10, 64)
	p.fail(i, err)
	return v
}

func (p *fieldParser) fail(i int, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
}
