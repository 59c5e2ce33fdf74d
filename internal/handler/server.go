package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Server HTTP сервер API статистики
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *utils.Logger
	config     *config.Config
	api        *APIHandler
	catalog    repository.Catalog
	cache      repository.StatsCache
	startedAt  time.Time
}

// NewServer создает HTTP сервер. cache может быть nil
func NewServer(cfg *config.Config, catalog repository.Catalog, tables repository.TableReader, cache repository.StatsCache, logger *utils.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware(cfg.Server.RateLimitRPS))
	router.Use(SecurityHeadersMiddleware())
	if cfg.Monitoring.MetricsEnabled {
		router.Use(metrics.HTTPMetricsMiddleware())
	}

	server := &Server{
		router:    router,
		logger:    logger,
		config:    cfg,
		api:       NewAPIHandler(catalog, tables, cache, cfg.Zones, logger),
		catalog:   catalog,
		cache:     cache,
		startedAt: time.Now(),
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.setupRoutes()

	return server
}

// Router возвращает gin роутер (используется в тестах)
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes настраивает маршруты
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/zones", s.api.ListZones)

		zone := v1.Group("/zones/:zone")
		{
			zone.GET("/statistics", s.api.ListPartitions)
			zone.GET("/statistics/:partition", s.api.GetStatistics)
			zone.GET("/tracks/:id", s.api.GetTrack)
			zone.GET("/tracks/:id/segments/:kind", s.api.GetSegments)
			zone.GET("/discards", s.api.GetDiscards)
		}
	}

	if s.config.Monitoring.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"address": s.config.Server.Address,
		"mode":    gin.Mode(),
	}).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck проверяет каталог и, если настроен, Redis
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"catalog": "ok"}
	status := http.StatusOK

	if err := s.catalog.Ping(ctx); err != nil {
		checks["catalog"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.cache != nil {
		checks["redis"] = "ok"
		// кэш необязателен: статус не меняется
		if err := s.cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":         state,
		"checks":         checks,
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// ==================== Middleware ====================

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithFields(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}).Info("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS. API только для чтения
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "X-Data-Source"},
		MaxAge:        12 * time.Hour,
	})
}

// RateLimitMiddleware ограничение частоты запросов, burst вдвое больше лимита
func RateLimitMiddleware(rps float64) gin.HandlerFunc {
	burst := int(2 * rps)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			abortWithError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests")
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}
