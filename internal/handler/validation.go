package handler

import (
	"net/http"
	"regexp"

	"github.com/flybeeper/trail-conflation/internal/aggregate"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/gin-gonic/gin"
)

// trackIDPattern допустимые идентификаторы треков (имя файла без расширения)
var trackIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// apiError тело ответа об ошибке
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, apiError{Code: code, Message: message})
}

// zoneParam проверяет параметр :zone по таблице зон
func (h *APIHandler) zoneParam(c *gin.Context) (string, bool) {
	zone := c.Param("zone")
	if _, ok := h.zones[zone]; !ok {
		abortWithError(c, http.StatusNotFound, "unknown_zone", "Zone is not configured")
		return "", false
	}
	return zone, true
}

// partitionParam проверяет имя таблицы статистики
func partitionParam(c *gin.Context) (string, bool) {
	partition := c.Param("partition")
	if !aggregate.ValidName(partition) {
		abortWithError(c, http.StatusBadRequest, "invalid_partition", "Partition name must match [a-z0-9_]+")
		return "", false
	}
	return partition, true
}

// trackParam проверяет идентификатор трека
func trackParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !trackIDPattern.MatchString(id) || id == "." || id == ".." {
		abortWithError(c, http.StatusBadRequest, "invalid_track_id", "Track id contains unsupported characters")
		return "", false
	}
	return id, true
}

// kindParam проверяет вид сегментации (km, pace, edges)
func kindParam(c *gin.Context) (models.SegmentKind, bool) {
	kind := models.SegmentKind(c.Param("kind"))
	if !kind.Valid() {
		abortWithError(c, http.StatusBadRequest, "invalid_kind", "Segment kind must be one of km, pace, edges")
		return "", false
	}
	return kind, true
}
