package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Метрики обработки треков
	TracksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_tracks_processed_total",
			Help: "Total number of tracks processed by outcome",
		},
		[]string{"zone", "outcome"}, // accepted, discarded, skipped, failed
	)

	TracksDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_tracks_discarded_total",
			Help: "Total number of discarded tracks by discard code",
		},
		[]string{"zone", "code"},
	)

	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_match_duration_seconds",
			Help:    "Duration of map matching per track in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"matcher"},
	)

	MatchPresets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_match_preset_total",
			Help: "Number of tracks matched by each parameter preset",
		},
		[]string{"preset"}, // k2, k3, k4, none
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"stage"}, // validate, match, derive, assign, segment, write
	)

	SegmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_segments_total",
			Help: "Total number of segments produced",
		},
		[]string{"kind"}, // km, pace, edges
	)

	// Метрики агрегации
	PartitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_partitions_total",
			Help: "Total number of statistics partitions by status",
		},
		[]string{"status"}, // written, skipped, empty, failed
	)

	OutliersCorrected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_outliers_corrected_total",
			Help: "Number of per-edge pace values replaced by the IQR correction",
		},
		[]string{"partition_kind"},
	)

	// Catalog Batch Writer метрики
	CatalogBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_catalog_batch_size",
			Help:    "Size of catalog batch inserts",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"entity_type"}, // discards, match_configs, summaries
	)

	CatalogBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_catalog_batch_duration_seconds",
			Help:    "Duration of catalog batch operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"entity_type"},
	)

	CatalogWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_catalog_write_errors_total",
			Help: "Total number of catalog write errors",
		},
		[]string{"entity_type"},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_redis_operation_errors_total",
			Help: "Total number of Redis operation errors",
		},
		[]string{"operation"},
	)

	// MQTT метрики
	MQTTMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_mqtt_messages_published_total",
			Help: "Total number of MQTT notifications published",
		},
		[]string{"topic_kind", "status"},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trail_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trail_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)

	NetworkEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trail_network_edges",
			Help: "Number of edges in the loaded network table",
		},
		[]string{"zone"},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
