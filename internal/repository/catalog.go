package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const summaryColumns = `zone, track_id, user, title, url, difficulty, date, month, year, season, weekday,
	total_time, total_distance, average_speed, average_pace, elevation_gain, weather_condition,
	first_lon, first_lat, last_lon, last_lat`

// SQLCatalog каталог треков в SQLite или MySQL
type SQLCatalog struct {
	db     *sql.DB
	driver string
	logger *utils.Logger
}

// NewSQLCatalog открывает каталог. Для SQLite каталог файла создается при необходимости
func NewSQLCatalog(cfg *config.CatalogConfig, logger *utils.Logger) (*SQLCatalog, error) {
	if cfg == nil {
		return nil, fmt.Errorf("catalog config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog DSN is required")
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); !strings.HasPrefix(cfg.DSN, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create catalog directory: %w", err)
			}
		}
	case config.DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// Настройка пула соединений
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == config.DriverSQLite {
		// один писатель на файл
		maxOpen = 1
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxLifetime(1 * time.Hour)

	repo := &SQLCatalog{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("driver", cfg.Driver).Info("Catalog connection established")
	return repo, nil
}

// Ping проверяет соединение с базой
func (r *SQLCatalog) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog ping failed: %w", err)
	}
	return nil
}

// Close закрывает соединение
func (r *SQLCatalog) Close() error {
	return r.db.Close()
}

// Migrate применяет встроенные миграции схемы
func (r *SQLCatalog) Migrate() error {
	m, err := r.newMigrate()
	if err != nil {
		return err
	}
	// m не закрываем: это закрыло бы r.db

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	r.logger.WithField("version", version).WithField("dirty", dirty).Info("Catalog schema is up to date")
	return nil
}

func (r *SQLCatalog) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var driver database.Driver
	switch r.driver {
	case config.DriverMySQL:
		driver, err = migratemysql.WithInstance(r.db, &migratemysql.Config{})
	default:
		driver, err = migratesqlite.WithInstance(r.db, &migratesqlite.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", r.driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, r.driver, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: r.logger}
	return m, nil
}

// migrateLogger реализует migrate.Logger поверх utils.Logger
type migrateLogger struct {
	logger *utils.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf("[migrate] "+strings.TrimSpace(format), v...)
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.IsDebug()
}

// SaveDiscardsBatch сохраняет батч записей журнала отбраковки
func (r *SQLCatalog) SaveDiscardsBatch(ctx context.Context, records []*models.DiscardRecord) error {
	if len(records) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(records)*6)
	for _, d := range records {
		args = append(args, d.Zone, d.TrackID, int(d.Code), d.Reason, d.RunID, d.RecordedAt.UTC())
	}
	query := `REPLACE INTO discarded (zone, track_id, error_type, reason, run_id, recorded_at) VALUES ` +
		generatePlaceholders(len(records), 6)

	return r.execBatch(ctx, "discard", len(records), query, args)
}

// SaveMatchConfigsBatch сохраняет пресеты, с которыми треки были сопоставлены
func (r *SQLCatalog) SaveMatchConfigsBatch(ctx context.Context, records []*models.MatchConfigRecord) error {
	if len(records) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(records)*5)
	for _, m := range records {
		args = append(args, m.Zone, m.TrackID, m.K, m.Radius, m.GPSError)
	}
	query := `REPLACE INTO match_config (zone, track_id, k, radius, gps_error) VALUES ` +
		generatePlaceholders(len(records), 5)

	return r.execBatch(ctx, "match_config", len(records), query, args)
}

// SaveSummariesBatch сохраняет сводки принятых треков
func (r *SQLCatalog) SaveSummariesBatch(ctx context.Context, summaries []*models.TrackSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(summaries)*21)
	for _, s := range summaries {
		args = append(args,
			s.Zone, s.TrackID, s.User, s.Title, s.URL, s.Difficulty, s.Date, s.Month, s.Year, s.Season, s.Weekday,
			s.TotalTime, s.TotalDistance, s.AverageSpeed, s.AveragePace, s.ElevationGain, s.WeatherCondition,
			s.First.Longitude, s.First.Latitude, s.Last.Longitude, s.Last.Latitude)
	}
	query := `REPLACE INTO tracks (` + summaryColumns + `) VALUES ` + generatePlaceholders(len(summaries), 21)

	return r.execBatch(ctx, "summary", len(summaries), query, args)
}

func (r *SQLCatalog) execBatch(ctx context.Context, entity string, count int, query string, args []interface{}) error {
	start := time.Now()
	defer func() {
		metrics.CatalogBatchDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())
	}()
	metrics.CatalogBatchSize.WithLabelValues(entity).Observe(float64(count))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.CatalogWriteErrors.WithLabelValues(entity).Inc()
		return fmt.Errorf("failed to batch insert %s records: %w", entity, err)
	}

	affected, _ := result.RowsAffected()
	r.logger.WithField("entity", entity).WithField("count", affected).Debug("Saved batch to catalog")
	return nil
}

// IsProcessed проверяет, есть ли трек в каталоге (принятым или отбракованным)
func (r *SQLCatalog) IsProcessed(ctx context.Context, zone, trackID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM tracks WHERE zone = ? AND track_id = ?)
		     + (SELECT COUNT(*) FROM discarded WHERE zone = ? AND track_id = ?)`,
		zone, trackID, zone, trackID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check track %s: %w", trackID, err)
	}
	return n > 0, nil
}

// ProcessedIDs возвращает идентификаторы всех обработанных треков зоны
func (r *SQLCatalog) ProcessedIDs(ctx context.Context, zone string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT track_id FROM tracks WHERE zone = ?
		UNION
		SELECT track_id FROM discarded WHERE zone = ?`, zone, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed tracks: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan track id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Summaries возвращает сводки принятых треков зоны в порядке track_id
func (r *SQLCatalog) Summaries(ctx context.Context, zone string) ([]models.TrackSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM tracks WHERE zone = ? ORDER BY track_id`, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to query track summaries: %w", err)
	}
	defer rows.Close()

	var out []models.TrackSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Summary возвращает сводку одного трека или ErrNotFound
func (r *SQLCatalog) Summary(ctx context.Context, zone, trackID string) (*models.TrackSummary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM tracks WHERE zone = ? AND track_id = ?`, zone, trackID)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row scanner) (*models.TrackSummary, error) {
	var s models.TrackSummary
	err := row.Scan(
		&s.Zone, &s.TrackID, &s.User, &s.Title, &s.URL, &s.Difficulty, &s.Date, &s.Month, &s.Year, &s.Season, &s.Weekday,
		&s.TotalTime, &s.TotalDistance, &s.AverageSpeed, &s.AveragePace, &s.ElevationGain, &s.WeatherCondition,
		&s.First.Longitude, &s.First.Latitude, &s.Last.Longitude, &s.Last.Latitude)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan track summary: %w", err)
	}
	return &s, nil
}

// MatchConfig возвращает пресет, с которым трек был сопоставлен, или ErrNotFound
func (r *SQLCatalog) MatchConfig(ctx context.Context, zone, trackID string) (*models.MatchConfigRecord, error) {
	m := &models.MatchConfigRecord{Zone: zone, TrackID: trackID}
	err := r.db.QueryRowContext(ctx,
		`SELECT k, radius, gps_error FROM match_config WHERE zone = ? AND track_id = ?`, zone, trackID).
		Scan(&m.K, &m.Radius, &m.GPSError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query match config: %w", err)
	}
	return m, nil
}

// DiscardCounts число отбракованных треков зоны по кодам
func (r *SQLCatalog) DiscardCounts(ctx context.Context, zone string) (map[models.DiscardCode]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT error_type, COUNT(*) FROM discarded WHERE zone = ? GROUP BY error_type`, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to query discard counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DiscardCode]int)
	for rows.Next() {
		var code, n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("failed to scan discard count: %w", err)
		}
		counts[models.DiscardCode(code)] = n
	}
	return counts, rows.Err()
}

// generatePlaceholders генерирует плейсхолдеры для batch INSERT
func generatePlaceholders(count, fieldsPerRecord int) string {
	if count == 0 {
		return ""
	}

	singleRecord := "(" + strings.Repeat("?,", fieldsPerRecord-1) + "?)"
	placeholders := make([]string, count)
	for i := range placeholders {
		placeholders[i] = singleRecord
	}
	return strings.Join(placeholders, ",")
}
