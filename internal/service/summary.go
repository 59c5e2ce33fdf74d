package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/flybeeper/trail-conflation/internal/models"
)

// WeatherLookup возвращает погодные условия на дату (YYYY-MM-DD), пусто если неизвестно
type WeatherLookup interface {
	Condition(date string) string
}

// NoWeather пустой справочник погоды
type NoWeather struct{}

// Condition всегда возвращает пустую строку
func (NoWeather) Condition(string) string { return "" }

// WeatherTable справочник погоды из CSV файла date,condition
type WeatherTable map[string]string

// Condition возвращает условия на дату
func (w WeatherTable) Condition(date string) string {
	return w[date]
}

// LoadWeatherFile читает CSV с заголовком date,condition. Пустой path - пустой справочник
func LoadWeatherFile(path string) (WeatherLookup, error) {
	if path == "" {
		return NoWeather{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weather file: %w", err)
	}
	defer f.Close()
	return ReadWeather(f)
}

// ReadWeather читает справочник погоды
func ReadWeather(r io.Reader) (WeatherTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	table := make(WeatherTable)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("weather line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(rec[0], "date") {
			continue
		}
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("weather line %d: %w", line, err)
		}
		table[date.Format(time.DateOnly)] = strings.TrimSpace(rec[1])
	}
	return table, nil
}

// parseTrackDate разбирает дату трека: каталанский текст экспорта или YYYY-MM-DD из GPX
func parseTrackDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if d, err := time.Parse(time.DateOnly, text); err == nil {
		return d, true
	}
	if d, err := models.ParseCatalanDate(text); err == nil {
		return d, true
	}
	return time.Time{}, false
}

// BuildSummary собирает сводку принятого трека
func BuildSummary(zone string, track *models.RawTrack, totals models.TrackTotals, weather WeatherLookup) *models.TrackSummary {
	s := &models.TrackSummary{
		Zone:        zone,
		TrackID:     track.ID,
		User:        track.Meta.User,
		Title:       track.Meta.Title,
		URL:         track.Meta.URL,
		Difficulty:  models.NormalizeDifficulty(track.Meta.Difficulty),
		TrackTotals: totals,
	}

	if len(track.Points) > 0 {
		first, last := track.Points[0], track.Points[len(track.Points)-1]
		s.First = models.GeoPoint{Latitude: first.Latitude, Longitude: first.Longitude}
		s.Last = models.GeoPoint{Latitude: last.Latitude, Longitude: last.Longitude}
	}

	if date, ok := parseTrackDate(track.Meta.DateText); ok {
		s.SetDate(date)
		if weather != nil {
			s.WeatherCondition = weather.Condition(s.Date)
		}
	}
	return s
}
