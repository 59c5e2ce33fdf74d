package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "activity": {"name": "Senderisme"},
  "title": "Pic de l'Orri",
  "user": "muntanyenc",
  "url": "https://example.org/t/123",
  "difficulty": "Moderat",
  "date-up": "15 de juny de 2019",
  "coordinates": [
    [1.5012, 42.4011, 1200.5, 1560589200000],
    [1.5013, 42.4012, null, 1560589205000],
    [1.5014, 42.4013]
  ],
  "waypoints": [
    {"id": 77, "name": "Font del Bou", "pictogramName": "Font", "lat": 42.4012, "lon": 1.5013, "elevation": 1210,
     "photos": [{"url": "https://example.org/p/1.jpg"}]}
  ]
}`

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata><name>Morning hike</name><time>2021-05-02T07:00:00Z</time></metadata>
  <wpt lat="42.50" lon="1.52"><ele>1500</ele><name>Refugi</name><type>Refugi</type></wpt>
  <trk>
    <name>Track</name>
    <type>Senderisme</type>
    <trkseg>
      <trkpt lat="42.5000" lon="1.5200"><ele>1400</ele><time>2021-05-02T07:00:00Z</time></trkpt>
      <trkpt lat="42.5001" lon="1.5201"><ele>1401</ele><time>2021-05-02T07:00:05Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="42.5002" lon="1.5202"><time>2021-05-02T07:00:10Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestParseJSON(t *testing.T) {
	track, err := ParseJSON("123", []byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "123", track.ID)
	assert.Equal(t, "Senderisme", track.ActivityType)
	assert.Equal(t, "Moderat", track.Meta.Difficulty)
	assert.Equal(t, "15 de juny de 2019", track.Meta.DateText)
	require.Len(t, track.Points, 3)
	assert.Equal(t, 1.5012, track.Points[0].Longitude)
	assert.Equal(t, 42.4011, track.Points[0].Latitude)
	assert.Equal(t, 1200.5, track.Points[0].Elevation)
	assert.Equal(t, int64(1560589200000), track.Points[0].TimestampMs)
	assert.Equal(t, 0.0, track.Points[1].Elevation)
	assert.Equal(t, int64(0), track.Points[2].TimestampMs)

	require.Len(t, track.Waypoints, 1)
	assert.Equal(t, "77", track.Waypoints[0].POIID)
	assert.Equal(t, "Font", track.Waypoints[0].Type)
	assert.Equal(t, "https://example.org/p/1.jpg", track.Waypoints[0].Photo)
}

func TestParseJSONErrors(t *testing.T) {
	_, err := ParseJSON("x", []byte(`{"coordinates": [`))
	assert.Error(t, err)

	_, err = ParseJSON("x", []byte(`{"coordinates": [[1.0]]}`))
	assert.ErrorContains(t, err, "coordinate 0")
}

func TestParseGPX(t *testing.T) {
	track, err := ParseGPX("hike", []byte(sampleGPX))
	require.NoError(t, err)

	assert.Equal(t, "Senderisme", track.ActivityType)
	assert.Equal(t, "Morning hike", track.Meta.Title)
	assert.Equal(t, "2021-05-02", track.Meta.DateText)
	require.Len(t, track.Points, 3)
	assert.Equal(t, 1400.0, track.Points[0].Elevation)
	assert.Equal(t, int64(5000), track.Points[1].TimestampMs-track.Points[0].TimestampMs)
	assert.Equal(t, 0.0, track.Points[2].Elevation)

	require.Len(t, track.Waypoints, 1)
	assert.Equal(t, "Refugi", track.Waypoints[0].Name)
	assert.Equal(t, 1500.0, track.Waypoints[0].Elevation)
}

func TestReadFileAndList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(sampleJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.GPX"), []byte(sampleGPX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	files, err := List(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.GPX"), filepath.Join(dir, "b.json")}, files)

	track, err := ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "a", track.ID)
	assert.Len(t, track.Points, 3)

	_, err = ReadFile(filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
