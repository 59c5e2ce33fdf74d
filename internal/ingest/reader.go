// Package ingest reads raw track files (activity JSON exports and GPX).
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/tidwall/gjson"
	"github.com/tkrajina/gpxgo/gpx"
)

// ErrUnsupportedFormat is returned for files that are neither JSON nor GPX.
var ErrUnsupportedFormat = errors.New("unsupported track file format")

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".gpx":
		return true
	}
	return false
}

// TrackID is the file name without extension.
func TrackID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// List returns the supported track files of dir sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads a track file, choosing the parser by extension.
func ReadFile(path string) (*models.RawTrack, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	id := TrackID(path)
	if strings.EqualFold(filepath.Ext(path), ".gpx") {
		return ParseGPX(id, data)
	}
	return ParseJSON(id, data)
}

// ParseJSON parses an activity export:
//
//	{"activity": {"name": "Senderisme"}, "coordinates": [[lon, lat, elev, ts_ms], ...],
//	 "title": "...", "user": "...", "url": "...", "difficulty": "...", "date-up": "...",
//	 "waypoints": [{"id": 1, "name": "...", "pictogramName": "...", "lat": 0, "lon": 0, "elevation": 0,
//	                "photos": [{"url": "..."}]}]}
func ParseJSON(id string, data []byte) (*models.RawTrack, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("track %s: invalid JSON", id)
	}
	doc := gjson.ParseBytes(data)

	track := &models.RawTrack{
		ID:           id,
		ActivityType: doc.Get("activity.name").String(),
		Meta: models.TrackMeta{
			Title:      doc.Get("title").String(),
			User:       doc.Get("user").String(),
			URL:        doc.Get("url").String(),
			Difficulty: doc.Get("difficulty").String(),
			DateText:   doc.Get("date-up").String(),
		},
	}

	coords := doc.Get("coordinates").Array()
	track.Points = make([]models.RawPoint, 0, len(coords))
	for i, c := range coords {
		v := c.Array()
		if len(v) < 2 {
			return nil, fmt.Errorf("track %s: coordinate %d has %d values", id, i, len(v))
		}
		p := models.RawPoint{Longitude: v[0].Float(), Latitude: v[1].Float()}
		if len(v) > 2 {
			p.Elevation = v[2].Float()
		}
		if len(v) > 3 {
			p.TimestampMs = v[3].Int()
		}
		track.Points = append(track.Points, p)
	}

	doc.Get("waypoints").ForEach(func(_, w gjson.Result) bool {
		wpType := w.Get("pictogramName").String()
		if wpType == "" {
			wpType = w.Get("type").String()
		}
		track.Waypoints = append(track.Waypoints, models.Waypoint{
			POIID:     w.Get("id").String(),
			Name:      w.Get("name").String(),
			Type:      wpType,
			Longitude: w.Get("lon").Float(),
			Latitude:  w.Get("lat").Float(),
			Elevation: w.Get("elevation").Float(),
			Photo:     w.Get("photos.0.url").String(),
		})
		return true
	})

	return track, nil
}

// ParseGPX parses a GPX file. The activity type comes from the first
// track's <type>, points from all segments of all tracks.
func ParseGPX(id string, data []byte) (*models.RawTrack, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", id, err)
	}

	track := &models.RawTrack{
		ID: id,
		Meta: models.TrackMeta{
			Title: g.Name,
			User:  g.AuthorName,
			URL:   g.AuthorLink,
		},
	}
	if g.Time != nil {
		track.Meta.DateText = g.Time.Format("2006-01-02")
	}

	for ti, trk := range g.Tracks {
		if ti == 0 {
			track.ActivityType = trk.Type
			if track.Meta.Title == "" {
				track.Meta.Title = trk.Name
			}
		}
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				rp := models.RawPoint{Longitude: p.Longitude, Latitude: p.Latitude}
				if p.Elevation.NotNull() {
					rp.Elevation = p.Elevation.Value()
				}
				if !p.Timestamp.IsZero() {
					rp.TimestampMs = p.Timestamp.UnixMilli()
				}
				track.Points = append(track.Points, rp)
			}
		}
	}

	for _, w := range g.Waypoints {
		wp := models.Waypoint{
			Name:      w.Name,
			Type:      w.Type,
			Longitude: w.Longitude,
			Latitude:  w.Latitude,
		}
		if w.Elevation.NotNull() {
			wp.Elevation = w.Elevation.Value()
		}
		track.Waypoints = append(track.Waypoints, wp)
	}

	return track, nil
}
