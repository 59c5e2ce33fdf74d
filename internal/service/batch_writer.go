package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/internal/repository"
	"github.com/flybeeper/trail-conflation/pkg/utils"
)

// BatchWriter асинхронный writer для батчевого сохранения записей каталога.
// Для каждого типа записей один worker, поэтому запись в каталог последовательна
type BatchWriter struct {
	catalog repository.Catalog
	logger  *utils.Logger
	config  *BatchConfig

	// Каналы для разных типов записей
	discardChan chan *models.DiscardRecord
	matchChan   chan *models.MatchConfigRecord
	summaryChan chan *models.TrackSummary

	// Контроль жизненного цикла
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Метрики
	metrics *BatchMetrics
}

// BatchConfig конфигурация батчера
type BatchConfig struct {
	BatchSize     int           `json:"batch_size"`     // Размер батча
	FlushInterval time.Duration `json:"flush_interval"` // Интервал принудительного flush
	ChannelBuffer int           `json:"channel_buffer"` // Размер буфера канала
	MaxRetries    int           `json:"max_retries"`    // Максимум повторов
	RetryDelay    time.Duration `json:"retry_delay"`    // Задержка между повторами
	WriteTimeout  time.Duration `json:"write_timeout"`  // Таймаут одной записи батча
}

// BatchMetrics метрики производительности
type BatchMetrics struct {
	mu sync.RWMutex

	DiscardsQueued    int64 `json:"discards_queued"`
	DiscardsProcessed int64 `json:"discards_processed"`
	DiscardsErrors    int64 `json:"discards_errors"`

	MatchesQueued    int64 `json:"matches_queued"`
	MatchesProcessed int64 `json:"matches_processed"`
	MatchesErrors    int64 `json:"matches_errors"`

	SummariesQueued    int64 `json:"summaries_queued"`
	SummariesProcessed int64 `json:"summaries_processed"`
	SummariesErrors    int64 `json:"summaries_errors"`

	LastFlushDuration time.Duration `json:"last_flush_duration"`
	LastBatchSize     int           `json:"last_batch_size"`
}

// DefaultBatchConfig возвращает конфигурацию по умолчанию
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		ChannelBuffer: 1000,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		WriteTimeout:  30 * time.Second,
	}
}

// NewBatchWriter создает и запускает BatchWriter
func NewBatchWriter(catalog repository.Catalog, logger *utils.Logger, config *BatchConfig) *BatchWriter {
	if config == nil {
		config = DefaultBatchConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	bw := &BatchWriter{
		catalog: catalog,
		logger:  logger,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,

		discardChan: make(chan *models.DiscardRecord, config.ChannelBuffer),
		matchChan:   make(chan *models.MatchConfigRecord, config.ChannelBuffer),
		summaryChan: make(chan *models.TrackSummary, config.ChannelBuffer),

		metrics: &BatchMetrics{},
	}

	bw.start()
	return bw
}

// start запускает worker'ы
func (bw *BatchWriter) start() {
	bw.wg.Add(3)
	go runBatchWorker(bw, bw.discardChan, "discard", bw.catalog.SaveDiscardsBatch, &bw.metrics.DiscardsProcessed, &bw.metrics.DiscardsErrors)
	go runBatchWorker(bw, bw.matchChan, "match_config", bw.catalog.SaveMatchConfigsBatch, &bw.metrics.MatchesProcessed, &bw.metrics.MatchesErrors)
	go runBatchWorker(bw, bw.summaryChan, "summary", bw.catalog.SaveSummariesBatch, &bw.metrics.SummariesProcessed, &bw.metrics.SummariesErrors)

	bw.logger.WithField("batch_size", bw.config.BatchSize).
		WithField("flush_interval", bw.config.FlushInterval).
		Info("Started catalog batch writer")
}

// QueueDiscard добавляет запись журнала отбраковки. Блокируется, пока буфер полон
func (bw *BatchWriter) QueueDiscard(record *models.DiscardRecord) error {
	return queue(bw, bw.discardChan, record, &bw.metrics.DiscardsQueued)
}

// QueueMatchConfig добавляет запись о выбранном пресете
func (bw *BatchWriter) QueueMatchConfig(record *models.MatchConfigRecord) error {
	return queue(bw, bw.matchChan, record, &bw.metrics.MatchesQueued)
}

// QueueSummary добавляет сводку принятого трека
func (bw *BatchWriter) QueueSummary(summary *models.TrackSummary) error {
	return queue(bw, bw.summaryChan, summary, &bw.metrics.SummariesQueued)
}

func queue[T any](bw *BatchWriter, ch chan T, item T, counter *int64) error {
	select {
	case <-bw.ctx.Done():
		return fmt.Errorf("batch writer is shutting down")
	default:
	}

	select {
	case ch <- item:
		bw.metrics.mu.Lock()
		*counter++
		bw.metrics.mu.Unlock()
		return nil
	case <-bw.ctx.Done():
		return fmt.Errorf("batch writer is shutting down")
	}
}

// runBatchWorker копит записи и сохраняет их при заполнении батча, по таймеру и при остановке
func runBatchWorker[T any](
	bw *BatchWriter,
	ch chan T,
	entity string,
	save func(ctx context.Context, batch []T) error,
	processed, errs *int64,
) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	buffer := make([]T, 0, bw.config.BatchSize)
	flush := func() {
		if len(buffer) == 0 {
			return
		}
		batch := make([]T, len(buffer))
		copy(batch, buffer)
		buffer = buffer[:0]

		start := time.Now()
		err := bw.retryOperation(func(ctx context.Context) error {
			return save(ctx, batch)
		})
		duration := time.Since(start)

		bw.metrics.mu.Lock()
		if err != nil {
			*errs += int64(len(batch))
			bw.logger.WithField("entity", entity).
				WithField("batch_size", len(batch)).
				WithField("error", err).
				Error("Failed to flush catalog batch")
		} else {
			*processed += int64(len(batch))
			bw.logger.WithField("entity", entity).
				WithField("batch_size", len(batch)).
				WithField("duration", duration).
				Debug("Flushed catalog batch")
		}
		bw.metrics.LastFlushDuration = duration
		bw.metrics.LastBatchSize = len(batch)
		bw.metrics.mu.Unlock()
	}

	for {
		select {
		case item := <-ch:
			buffer = append(buffer, item)
			if len(buffer) >= bw.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-bw.ctx.Done():
			// Финальный flush: забираем все, что уже в канале
			for {
				select {
				case item := <-ch:
					buffer = append(buffer, item)
					if len(buffer) >= bw.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// retryOperation выполняет операцию с повторами. Каждая попытка получает свой таймаут,
// не зависящий от остановки writer'а, чтобы финальный flush мог завершиться
func (bw *BatchWriter) retryOperation(operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(bw.config.RetryDelay * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), bw.config.WriteTimeout)
		lastErr = operation(ctx)
		cancel()
		if lastErr == nil {
			return nil
		}

		bw.logger.WithField("attempt", attempt+1).
			WithField("max_retries", bw.config.MaxRetries).
			WithField("error", lastErr).
			Warn("Catalog batch operation failed, retrying")
	}

	return fmt.Errorf("operation failed after %d retries: %w", bw.config.MaxRetries, lastErr)
}

// GetMetrics возвращает копию метрик
func (bw *BatchWriter) GetMetrics() BatchMetrics {
	bw.metrics.mu.RLock()
	defer bw.metrics.mu.RUnlock()

	return BatchMetrics{
		DiscardsQueued:     bw.metrics.DiscardsQueued,
		DiscardsProcessed:  bw.metrics.DiscardsProcessed,
		DiscardsErrors:     bw.metrics.DiscardsErrors,
		MatchesQueued:      bw.metrics.MatchesQueued,
		MatchesProcessed:   bw.metrics.MatchesProcessed,
		MatchesErrors:      bw.metrics.MatchesErrors,
		SummariesQueued:    bw.metrics.SummariesQueued,
		SummariesProcessed: bw.metrics.SummariesProcessed,
		SummariesErrors:    bw.metrics.SummariesErrors,
		LastFlushDuration:  bw.metrics.LastFlushDuration,
		LastBatchSize:      bw.metrics.LastBatchSize,
	}
}

// Stop останавливает BatchWriter и дожидается финального flush
func (bw *BatchWriter) Stop() error {
	bw.logger.Info("Stopping catalog batch writer...")

	bw.cancel()
	bw.wg.Wait()

	m := bw.GetMetrics()
	bw.logger.WithFields(map[string]interface{}{
		"discards":  m.DiscardsProcessed,
		"summaries": m.SummariesProcessed,
		"errors":    m.DiscardsErrors + m.MatchesErrors + m.SummariesErrors,
	}).Info("Catalog batch writer stopped")

	if failed := m.DiscardsErrors + m.MatchesErrors + m.SummariesErrors; failed > 0 {
		return fmt.Errorf("%d catalog records were not saved", failed)
	}
	return nil
}
