package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/flybeeper/trail-conflation/internal/models"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Pipeline    PipelineConfig
	Matcher     MatcherConfig
	Performance PerformanceConfig
	Catalog     CatalogConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	Server      ServerConfig
	Monitoring  MonitoringConfig

	// Zones таблица зон: встроенные + ZONES_FILE
	Zones map[string]models.Bounds
}

// PipelineConfig входные и выходные данные конвейера
type PipelineConfig struct {
	Zone            string
	InputDir        string
	OutputDir       string
	NetworkFile     string
	ActivityType    string
	MinYear         int
	ZonesFile       string
	WeatherFile     string
	ForcePartitions bool
	Progress        bool
}

// MatcherConfig конфигурация привязки к сети
type MatcherConfig struct {
	Kind             string // local или http
	URL              string
	Timeout          time.Duration
	GeohashPrecision int
}

// PerformanceConfig конфигурация производительности
type PerformanceConfig struct {
	Workers      int
	MaxBatchSize int
	BatchTimeout time.Duration
}

// CatalogConfig конфигурация SQL каталога
type CatalogConfig struct {
	Driver       string // sqlite или mysql
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// RedisConfig конфигурация Redis. Пустой URL отключает кэш
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	TTL          time.Duration
}

// MQTTConfig конфигурация MQTT. Пустой URL отключает уведомления
type MQTTConfig struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	TopicPrefix  string
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS float64
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled  bool
	MetricsTextfile string
}

const (
	MatcherLocal = "local"
	MatcherHTTP  = "http"

	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Pipeline: PipelineConfig{
			Zone:            getEnv("ZONE", ""),
			InputDir:        getEnv("INPUT_DIR", "data/input"),
			OutputDir:       getEnv("OUTPUT_DIR", "data/output"),
			NetworkFile:     getEnv("NETWORK_FILE", "data/network/edges.geojson"),
			ActivityType:    getEnv("ACTIVITY_TYPE", "Senderisme"),
			MinYear:         getInt("MIN_YEAR", 2012),
			ZonesFile:       getEnv("ZONES_FILE", ""),
			WeatherFile:     getEnv("WEATHER_FILE", ""),
			ForcePartitions: getBool("FORCE_PARTITIONS", false),
			Progress:        getBool("PROGRESS", true),
		},
		Matcher: MatcherConfig{
			Kind:             getEnv("MATCHER", MatcherLocal),
			URL:              getEnv("MATCHER_URL", ""),
			Timeout:          getDuration("MATCH_TIMEOUT", 2*time.Minute),
			GeohashPrecision: getInt("MATCHER_GEOHASH_PRECISION", 6),
		},
		Performance: PerformanceConfig{
			Workers:      getInt("WORKERS", runtime.NumCPU()),
			MaxBatchSize: getInt("MAX_BATCH_SIZE", 100),
			BatchTimeout: getDuration("BATCH_TIMEOUT", 5*time.Second),
		},
		Catalog: CatalogConfig{
			Driver:       getEnv("CATALOG_DRIVER", DriverSQLite),
			DSN:          getEnv("CATALOG_DSN", "data/output/catalog.db"),
			MaxIdleConns: getInt("CATALOG_MAX_IDLE_CONNS", 2),
			MaxOpenConns: getInt("CATALOG_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			TTL:          getDuration("REDIS_TTL", 24*time.Hour),
		},
		MQTT: MQTTConfig{
			URL:          getEnv("MQTT_URL", ""),
			ClientID:     getEnv("MQTT_CLIENT_ID", "trail-pipeline"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", true),
			TopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "trails"),
		},
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8090"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimitRPS: getFloat("RATE_LIMIT_RPS", 100),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled:  getBool("METRICS_ENABLED", true),
			MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		},
	}

	zones, err := LoadZones(cfg.Pipeline.ZonesFile)
	if err != nil {
		return nil, err
	}
	cfg.Zones = zones

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Pipeline.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.Pipeline.Zone != "" {
		if _, ok := c.Zones[c.Pipeline.Zone]; !ok {
			return fmt.Errorf("unknown zone %q", c.Pipeline.Zone)
		}
	}

	switch c.Matcher.Kind {
	case MatcherLocal:
	case MatcherHTTP:
		if c.Matcher.URL == "" {
			return fmt.Errorf("MATCHER_URL is required for the http matcher")
		}
	default:
		return fmt.Errorf("MATCHER must be %q or %q", MatcherLocal, MatcherHTTP)
	}
	if c.Matcher.Timeout <= 0 {
		return fmt.Errorf("MATCH_TIMEOUT must be positive")
	}
	if c.Matcher.GeohashPrecision < 1 || c.Matcher.GeohashPrecision > 12 {
		return fmt.Errorf("MATCHER_GEOHASH_PRECISION must be between 1 and 12")
	}

	// Проверка производительности
	if c.Performance.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	if c.Performance.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}

	switch c.Catalog.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("CATALOG_DRIVER must be %q or %q", DriverSQLite, DriverMySQL)
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("CATALOG_DSN is required")
	}

	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}

	return nil
}

// RequireZone проверяет, что зона задана (для process и aggregate)
func (c *Config) RequireZone() (models.Zone, error) {
	if c.Pipeline.Zone == "" {
		return models.Zone{}, fmt.Errorf("ZONE is required")
	}
	return models.Zone{Name: c.Pipeline.Zone, Bounds: c.Zones[c.Pipeline.Zone]}, nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
