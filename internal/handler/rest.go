package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Источник данных статистики (заголовок X-Data-Source)
const (
	sourceCache = "cache"
	sourceFile  = "file"
)

// APIHandler обработчик REST API поверх рассчитанных таблиц
type APIHandler struct {
	catalog repository.Catalog
	tables  repository.TableReader
	cache   repository.StatsCache // может быть nil
	zones   map[string]models.Bounds
	logger  *utils.Logger
	timeout time.Duration
}

// NewAPIHandler создает обработчик. cache может быть nil
func NewAPIHandler(catalog repository.Catalog, tables repository.TableReader, cache repository.StatsCache, zones map[string]models.Bounds, logger *utils.Logger) *APIHandler {
	return &APIHandler{
		catalog: catalog,
		tables:  tables,
		cache:   cache,
		zones:   zones,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// ListZones возвращает настроенные зоны
// GET /api/v1/zones
func (h *APIHandler) ListZones(c *gin.Context) {
	names := make([]string, 0, len(h.zones))
	for name := range h.zones {
		names = append(names, name)
	}
	sort.Strings(names)

	zones := make([]models.Zone, 0, len(names))
	for _, name := range names {
		zones = append(zones, models.Zone{Name: name, Bounds: h.zones[name]})
	}
	h.respond(c, gin.H{"zones": zones})
}

// ListPartitions возвращает записанные таблицы статистики зоны
// GET /api/v1/zones/:zone/statistics
func (h *APIHandler) ListPartitions(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}

	names, err := h.tables.Partitions(zone)
	if err != nil {
		h.internalError(c, err, "Failed to list statistics tables")
		return
	}
	if names == nil {
		names = []string{}
	}
	h.respond(c, gin.H{"zone": zone, "partitions": names})
}

// GetStatistics возвращает таблицу статистики ребер. Сначала читается Redis,
// при промахе - CSV файл
// GET /api/v1/zones/:zone/statistics/:partition
func (h *APIHandler) GetStatistics(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	partition, ok := partitionParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats, source, err := h.statistics(ctx, zone, partition)
	if errors.Is(err, repository.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "partition_not_found", "Statistics table does not exist")
		return
	}
	if err != nil {
		h.internalError(c, err, "Failed to read statistics table")
		return
	}

	c.Header("X-Data-Source", source)
	h.respond(c, statisticsToGeoJSON(zone, partition, stats))

	h.logger.WithFields(map[string]interface{}{
		"zone":      zone,
		"partition": partition,
		"edges":     len(stats),
		"source":    source,
	}).Debug("Statistics request completed")
}

func (h *APIHandler) statistics(ctx context.Context, zone, partition string) ([]models.EdgeStatistic, string, error) {
	if h.cache != nil {
		stats, err := h.cache.Statistics(ctx, zone, partition)
		if err == nil {
			return stats, sourceCache, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			h.logger.WithField("partition", partition).WithError(err).Warn("Statistics cache unavailable, reading file")
		}
	}
	stats, err := h.tables.Statistics(zone, partition)
	return stats, sourceFile, err
}

// GetTrack возвращает сводку принятого трека
// GET /api/v1/zones/:zone/tracks/:id
func (h *APIHandler) GetTrack(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	id, ok := trackParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	summary, err := h.catalog.Summary(ctx, zone, id)
	if errors.Is(err, repository.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "track_not_found", "Track was not accepted in this zone")
		return
	}
	if err != nil {
		h.internalError(c, err, "Failed to read track summary")
		return
	}

	response := gin.H{"summary": summary}
	if match, err := h.catalog.MatchConfig(ctx, zone, id); err == nil {
		response["match_config"] = match
	}
	h.respond(c, response)
}

// GetSegments возвращает одну из сегментаций трека
// GET /api/v1/zones/:zone/tracks/:id/segments/:kind
func (h *APIHandler) GetSegments(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	id, ok := trackParam(c)
	if !ok {
		return
	}
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	segments, err := h.tables.Segments(zone, id, kind)
	if errors.Is(err, repository.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "track_not_found", "Track has no segment tables")
		return
	}
	if err != nil {
		h.internalError(c, err, "Failed to read segment table")
		return
	}
	h.respond(c, segmentsToGeoJSON(id, kind, segments))
}

// GetDiscards возвращает число отбракованных треков по кодам
// GET /api/v1/zones/:zone/discards
func (h *APIHandler) GetDiscards(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	counts, err := h.catalog.DiscardCounts(ctx, zone)
	if err != nil {
		h.internalError(c, err, "Failed to read discard log")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	h.respond(c, gin.H{"zone": zone, "total": total, "codes": convertDiscardCounts(counts)})
}

func (h *APIHandler) internalError(c *gin.Context, err error, message string) {
	h.logger.WithField("path", c.FullPath()).WithError(err).Error(message)
	abortWithError(c, http.StatusInternalServerError, "internal_error", message)
}
