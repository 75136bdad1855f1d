package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/internal/metrics"

	"go.uber.org/zap"
)

type ReadingService interface {
	RecordReading(ctx context.Context, reading *domain.TelemetryReading) error
}

// Ingestor пул воркеров, сохраняющих поступающие показания
type Ingestor struct {
	workers int
	service ReadingService
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestor(service ReadingService, workers int, logger *zap.Logger) *Ingestor {
	if workers <= 0 {
		workers = 1
	}
	return &Ingestor{
		service: service,
		workers: workers,
		logger:  logger,
	}
}

// Start запускает воркеров и сразу возвращается. Воркеры завершаются при закрытии readings, отмене ctx или Stop.
func (i *Ingestor) Start(ctx context.Context, readings <-chan *domain.TelemetryReading) {
	ctx, i.cancel = context.WithCancel(ctx)

	i.logger.Info("starting ingestor",
		zap.Int("workers", i.workers),
		zap.String("start_time", time.Now().Format(time.RFC3339)),
	)

	metrics.IngestActiveWorkers.Set(float64(i.workers))

	for w := 0; w < i.workers; w++ {
		i.wg.Add(1)
		go i.worker(ctx, w, readings)
	}
}

func (i *Ingestor) worker(ctx context.Context, workerID int, readings <-chan *domain.TelemetryReading) {
	defer i.wg.Done()
	// При завершении воркера уменьшаем счетчик
	defer metrics.IngestActiveWorkers.Dec()

	i.logger.Debug("worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case reading, ok := <-readings:
			if !ok {
				i.logger.Info("reading channel closed, exiting worker", zap.Int("worker_id", workerID))
				return
			}

			select {
			case <-ctx.Done():
				i.logger.Info("context cancelled, exiting worker", zap.Int("worker_id", workerID))
				return
			default:
			}

			i.process(ctx, workerID, reading)

		case <-ctx.Done():
			i.logger.Info("context cancelled, exiting worker", zap.Int("worker_id", workerID))
			return
		}
	}
}

func (i *Ingestor) process(ctx context.Context, workerID int, reading *domain.TelemetryReading) {
	metrics.IngestReadingsReceived.Inc()
	startTime := time.Now()

	if err := i.service.RecordReading(ctx, reading); err != nil {
		metrics.IngestReadingsFailed.Inc()

		i.logger.Error("[Ingestor] failed to record reading",
			zap.Int("worker_id", workerID),
			zap.String("reading_id", reading.ID.String()),
			zap.Time("recorded_at", reading.RecordedAt),
			zap.Error(err),
		)
		return
	}

	metrics.IngestReadingsProcessed.Inc()

	processingTime := time.Since(startTime)
	metrics.IngestProcessingTime.Observe(processingTime.Seconds())

	i.logger.Debug("[Ingestor] reading recorded",
		zap.Int("worker_id", workerID),
		zap.String("reading_id", reading.ID.String()),
		zap.Duration("processing_time", processingTime),
	)
}

// Stop просит воркеров завершиться, не дожидаясь опустошения канала
func (i *Ingestor) Stop() {
	i.logger.Info("stopping ingestor gracefully")
	if i.cancel != nil {
		i.cancel()
	}
}

// Wait ждёт завершения всех воркеров
func (i *Ingestor) Wait() {
	i.wg.Wait()
	metrics.IngestActiveWorkers.Set(0)

	i.logger.Info("ingestor stopped",
		zap.String("stop_time", time.Now().Format(time.RFC3339)),
	)
}
