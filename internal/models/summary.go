package models

import (
	"fmt"
	"strings"
	"time"
)

// TrackSummary сводная информация о принятом треке (таблица tracks каталога)
type TrackSummary struct {
	Zone       string `json:"zone"`
	TrackID    string `json:"track_id"`
	User       string `json:"user"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Difficulty string `json:"difficulty"`
	Date       string `json:"date"` // YYYY-MM-DD, пусто если дата не распознана
	Month      string `json:"month"`
	Year       int    `json:"year"`
	Season     string `json:"season"`
	Weekday    string `json:"weekday"`
	TrackTotals
	WeatherCondition string   `json:"weather_condition"`
	First            GeoPoint `json:"first_coordinate"`
	Last             GeoPoint `json:"last_coordinate"`
}

// difficultyNames нормализация меток сложности
var difficultyNames = map[string]string{
	"Fàcil":         "Easy",
	"Moderat":       "Moderate",
	"Difícil":       "Difficult",
	"Molt difícil":  "Very difficult",
	"Només experts": "Very difficult",
}

// NormalizeDifficulty переводит метку сложности, неизвестные метки возвращаются как есть
func NormalizeDifficulty(label string) string {
	label = strings.TrimSpace(label)
	if name, ok := difficultyNames[label]; ok {
		return name
	}
	return label
}

var catalanMonths = []struct{ from, to string }{
	{"de gener", "January"},
	{"de febrer", "February"},
	{"de març", "March"},
	{"d’abril", "April"},
	{"d'abril", "April"},
	{"de maig", "May"},
	{"de juny", "June"},
	{"de juliol", "July"},
	{"d’agost", "August"},
	{"d'agost", "August"},
	{"de setembre", "September"},
	{"d’octubre", "October"},
	{"d'octubre", "October"},
	{"de novembre", "November"},
	{"de desembre", "December"},
}

// ParseCatalanDate разбирает дату вида "15 de juny de 2019" или "3 d'abril de 2020"
func ParseCatalanDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	for _, m := range catalanMonths {
		s = strings.ReplaceAll(s, m.from, m.to)
	}
	s = strings.ReplaceAll(s, " de ", " ")
	s = strings.Join(strings.Fields(s), " ")

	date, err := time.Parse("2 January 2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", text, err)
	}
	return date, nil
}

// Season метеорологический сезон по месяцу
func Season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "Win"
	case time.March, time.April, time.May:
		return "Spr"
	case time.June, time.July, time.August:
		return "Sum"
	default:
		return "Aut"
	}
}

// SetDate заполняет календарные поля сводки
func (s *TrackSummary) SetDate(date time.Time) {
	s.Date = date.Format(time.DateOnly)
	s.Year = date.Year()
	s.Month = date.Format("Jan")
	s.Weekday = date.Format("Mon")
	s.Season = Season(date.Month())
}

// HasDate распознана ли дата трека
func (s *TrackSummary) HasDate() bool {
	return s.Date != ""
}

// waypointTypes обобщенные типы точек интереса
var waypointTypes = map[string]string{
	"Cascada": "Point of interest", "Collada": "Hill", "Llac": "Lake", "Castell": "Monument",
	"Monument": "Monument", "Pont": "Monument", "Cim": "Mountain top", "Aparcament": "Parking",
	"Foto": "Photo", "Panoràmica": "Photo", "Platja": "Point of interest",
	"Aigües termals": "Point of interest", "Ancoratge": "Point of interest", "Cova": "Point of interest",
	"Cul de sac": "Point of interest", "Fi de paviment": "Point of interest", "Geocache": "Point of interest",
	"Intersecció": "Point of interest", "Jaciment arqueològic": "Point of interest", "Mina": "Point of interest",
	"Museu": "Point of interest", "Patrimoni de la Humanitat": "Point of interest", "Picnic": "Point of interest",
	"Porta": "Point of interest", "Punt d'informació": "Point of interest", "Punt d'interès": "Point of interest",
	"Punt d'observació d'aus": "Point of interest", "Ruïnes": "Point of interest",
	"Sense especificar": "Point of interest", "Túnel": "Point of interest", "Avituallament": "Refuge",
	"Càmping": "Refuge", "Pernoctació": "Refuge", "Refugi de muntanya": "Refuge", "Refugi lliure": "Refuge",
	"Lloc religiós": "Religious point", "Risc": "Risk", "Riu": "River", "Font": "Water source",
	"Arbre": "Wildlife", "Fauna": "Wildlife", "Flora": "Wildlife", "Parc": "Wildlife",
}

// GeneralWaypointType обобщенный тип точки интереса
func GeneralWaypointType(t string) string {
	if g, ok := waypointTypes[strings.TrimSpace(t)]; ok {
		return g
	}
	return "Point of interest"
}
