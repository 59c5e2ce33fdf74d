package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/trail-conflation/internal/ingest"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/mqtt"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// RecordSink принимает записи каталога. Реализуется BatchWriter
type RecordSink interface {
	QueueDiscard(record *models.DiscardRecord) error
	QueueMatchConfig(record *models.MatchConfigRecord) error
	QueueSummary(summary *models.TrackSummary) error
}

// TrackNotifier публикует результат обработки трека
type TrackNotifier interface {
	PublishTrack(zone string, event mqtt.TrackEvent) error
}

// RunStats итоги запуска обработки
type RunStats struct {
	RunID     string                     `json:"run_id"`
	Total     int                        `json:"total"`
	Skipped   int                        `json:"skipped"`
	Accepted  int                        `json:"accepted"`
	Discarded int                        `json:"discarded"`
	Failed    int                        `json:"failed"`
	Pending   int                        `json:"pending"` // не начаты из-за отмены
	ByCode    map[models.DiscardCode]int `json:"by_code"`
	Duration  time.Duration              `json:"duration"`
}

// Runner обрабатывает каталог треков пулом worker'ов
type Runner struct {
	processor *TrackProcessor
	catalog   repository.Catalog
	sink      RecordSink
	notifier  TrackNotifier
	workers   int
	progress  bool
	logger    *utils.Logger

	mu    sync.Mutex
	stats *RunStats
}

// RunnerOptions параметры Runner
type RunnerOptions struct {
	Workers  int
	Progress bool
	Notifier TrackNotifier // может быть nil
}

// NewRunner создает Runner
func NewRunner(processor *TrackProcessor, catalog repository.Catalog, sink RecordSink, opts RunnerOptions, logger *utils.Logger) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		processor: processor,
		catalog:   catalog,
		sink:      sink,
		notifier:  opts.Notifier,
		workers:   workers,
		progress:  opts.Progress,
		logger:    logger,
	}
}

// RunDir обрабатывает все поддерживаемые файлы каталога
func (r *Runner) RunDir(ctx context.Context, dir string) (*RunStats, error) {
	files, err := ingest.List(dir)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, files)
}

// Run обрабатывает файлы. Треки, уже записанные в каталог (принятые или
// отбракованные), пропускаются. После отмены ctx новые треки не начинаются,
// а начатые дорабатываются до конца
func (r *Runner) Run(ctx context.Context, files []string) (*RunStats, error) {
	start := time.Now()
	zone := r.processor.Zone().Name

	r.stats = &RunStats{
		RunID:  uuid.NewString(),
		Total:  len(files),
		ByCode: make(map[models.DiscardCode]int),
	}
	logger := r.logger.WithField("run_id", r.stats.RunID).WithField("zone", zone)

	processed, err := r.catalog.ProcessedIDs(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed tracks: %w", err)
	}

	pending := make([]string, 0, len(files))
	for _, path := range files {
		if _, ok := processed[ingest.TrackID(path)]; ok {
			r.stats.Skipped++
			continue
		}
		pending = append(pending, path)
	}
	metrics.TracksProcessed.WithLabelValues(zone, "skipped").Add(float64(r.stats.Skipped))

	logger.WithFields(map[string]interface{}{
		"files":   len(files),
		"skipped": r.stats.Skipped,
		"pending": len(pending),
		"workers": r.workers,
	}).Info("Starting track processing")

	var bar *progressbar.ProgressBar
	if r.progress {
		bar = progressbar.Default(int64(len(pending)), "Processing "+zone)
	} else {
		bar = progressbar.DefaultSilent(int64(len(pending)))
	}

	jobs := make(chan string)
	// начатые треки дорабатываются даже после отмены
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				r.processFile(workCtx, path, logger)
				_ = bar.Add(1)
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, path := range pending {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- path:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	_ = bar.Finish()

	r.stats.Pending = len(pending) - dispatched
	r.stats.Duration = time.Since(start)
	stats := r.stats

	logger.WithFields(map[string]interface{}{
		"accepted":  stats.Accepted,
		"discarded": stats.Discarded,
		"failed":    stats.Failed,
		"pending":   stats.Pending,
		"duration":  stats.Duration,
	}).Info("Track processing finished")

	if ctx.Err() != nil {
		return stats, fmt.Errorf("processing interrupted with %d tracks pending: %w", stats.Pending, ctx.Err())
	}
	return stats, nil
}

func (r *Runner) processFile(ctx context.Context, path string, logger *utils.Logger) {
	id := ingest.TrackID(path)
	zone := r.processor.Zone().Name

	raw, err := ingest.ReadFile(path)
	if err != nil {
		r.fail(zone, id, err, logger)
		return
	}

	outcome, err := r.processor.Process(ctx, raw)
	if err != nil {
		r.fail(zone, id, err, logger)
		return
	}

	if err := r.record(zone, outcome); err != nil {
		r.fail(zone, id, err, logger)
		return
	}

	r.mu.Lock()
	if outcome.Accepted() {
		r.stats.Accepted++
	} else {
		r.stats.Discarded++
		r.stats.ByCode[outcome.Rejection.Code]++
	}
	r.mu.Unlock()

	r.notify(zone, outcome, logger)
}

// record передает записи каталога. Пока записи не сохранены, трек не считается
// обработанным и будет повторен следующим запуском
func (r *Runner) record(zone string, outcome *Outcome) error {
	if !outcome.Accepted() {
		return r.sink.QueueDiscard(&models.DiscardRecord{
			Zone:       zone,
			TrackID:    outcome.TrackID,
			Code:       outcome.Rejection.Code,
			Reason:     outcome.Rejection.Reason,
			RunID:      r.stats.RunID,
			RecordedAt: time.Now().UTC(),
		})
	}
	if err := r.sink.QueueMatchConfig(outcome.MatchConfig); err != nil {
		return err
	}
	return r.sink.QueueSummary(outcome.Summary)
}

func (r *Runner) notify(zone string, outcome *Outcome, logger *utils.Logger) {
	if r.notifier == nil {
		return
	}
	event := mqtt.TrackEvent{TrackID: outcome.TrackID, Status: mqtt.StatusAccepted, RunID: r.stats.RunID}
	if !outcome.Accepted() {
		event.Status = mqtt.StatusDiscarded
		event.Code = int(outcome.Rejection.Code)
		event.Reason = outcome.Rejection.Reason
	}
	if err := r.notifier.PublishTrack(zone, event); err != nil {
		logger.WithField("track_id", outcome.TrackID).WithError(err).Warn("Failed to publish track event")
	}
}

func (r *Runner) fail(zone, id string, err error, logger *utils.Logger) {
	r.mu.Lock()
	r.stats.Failed++
	r.mu.Unlock()

	metrics.TracksProcessed.WithLabelValues(zone, "failed").Inc()
	entry := logger.WithField("track_id", id).WithError(err)
	if errors.Is(err, ingest.ErrUnsupportedFormat) {
		entry.Warn("Skipping unreadable track file")
		return
	}
	entry.Error("Track processing failed")
}
