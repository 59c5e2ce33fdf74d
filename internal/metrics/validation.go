package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationChecked общее количество треков, прошедших через цепочку правил
	ValidationChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trail_validation_checked_tracks_total",
		Help: "Total number of tracks checked by the validation chain",
	})

	// ValidationRejected количество отклонений по правилам
	ValidationRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trail_validation_rejected_tracks_total",
		Help: "Number of tracks rejected by each validation rule",
	}, []string{"rule"})

	// ValidationTrackPoints распределение числа точек в проверяемых треках
	ValidationTrackPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trail_validation_track_points",
		Help:    "Distribution of raw point counts of checked tracks",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
	})
)
