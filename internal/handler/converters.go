package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const protobufContentType = "application/x-protobuf"

// Конвертеры из внутренних моделей в ответы API

// statisticsToGeoJSON таблица статистики как FeatureCollection, по объекту на ребро
func statisticsToGeoJSON(zone, partition string, stats []models.EdgeStatistic) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"zone": zone, "partition": partition}
	for _, s := range stats {
		f := geojson.NewFeature(s.Geometry)
		f.ID = s.EdgeID
		f.Properties["edge_id"] = s.EdgeID
		f.Properties["avg_pace"] = s.AvgPace
		f.Properties["total_tracks"] = s.TotalTracks
		f.Properties["list_tracks"] = s.TrackIDs
		fc.Append(f)
	}
	return fc
}

// segmentsToGeoJSON сегменты трека как FeatureCollection
func segmentsToGeoJSON(trackID string, kind models.SegmentKind, segments []models.Segment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"track_id": trackID, "kind": string(kind)}
	for _, s := range segments {
		f := geojson.NewFeature(s.Geometry)
		f.Properties["label"] = s.Label
		f.Properties["min_point_id"] = s.MinPointID
		f.Properties["max_point_id"] = s.MaxPointID
		f.Properties["dist"] = s.Distance
		f.Properties["time"] = s.Time
		f.Properties["elev_gain"] = s.ElevationGain
		f.Properties["avg_pace"] = s.AvgPace
		f.Properties["avg_speed"] = s.AvgSpeed
		f.Properties["uphill_perc"] = s.UphillPercentage
		f.Properties["pace_group"] = s.PaceGroup
		f.Properties["uphill_group"] = s.UphillGroup
		fc.Append(f)
	}
	return fc
}

// discardCount число отбракованных треков по коду
type discardCount struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

func convertDiscardCounts(counts map[models.DiscardCode]int) []discardCount {
	result := make([]discardCount, 0, len(models.AllDiscardCodes))
	for _, code := range models.AllDiscardCodes {
		result = append(result, discardCount{Code: int(code), Reason: code.String(), Count: counts[code]})
	}
	return result
}

// wantsProtobuf клиент запросил бинарный ответ
func wantsProtobuf(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), protobufContentType)
}

// toStruct переводит JSON объект в google.protobuf.Struct
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}

// respond отдает v в JSON или, по заголовку Accept, как protobuf Struct
func (h *APIHandler) respond(c *gin.Context, v interface{}) {
	if !wantsProtobuf(c) {
		c.JSON(http.StatusOK, v)
		return
	}

	st, err := toStruct(v)
	if err == nil {
		var data []byte
		if data, err = proto.Marshal(st); err == nil {
			c.Data(http.StatusOK, protobufContentType, data)
			return
		}
	}
	h.logger.WithError(err).Error("Failed to marshal protobuf response")
	abortWithError(c, http.StatusInternalServerError, "marshal_error", "Failed to serialize response")
}
