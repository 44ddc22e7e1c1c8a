package worker

import (
	"context"
	"log"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/service"
)

// StatisticsWorker consumes sale and return events and recomputes the
// affected day. The recompute is a full rebuild, so re-running it after
// the inline trigger already ran is harmless.
type StatisticsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewStatisticsWorker creates a statistics worker
func NewStatisticsWorker(consumer *broker.Consumer, stats *service.StatsService) *StatisticsWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnSaleCreated(func(ctx context.Context, event *models.SaleCreatedEvent) error {
		_, err := stats.RecomputeDate(ctx, event.Day)
		return err
	})
	eventHandler.OnReturnProcessed(func(ctx context.Context, event *models.ReturnProcessedEvent) error {
		_, err := stats.RecomputeDate(ctx, event.Day)
		return err
	})
	eventHandler.OnReturnRecovered(func(ctx context.Context, event *models.ReturnRecoveredEvent) error {
		_, err := stats.RecomputeDate(ctx, event.Day)
		return err
	})

	return &StatisticsWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *StatisticsWorker) Start(ctx context.Context) error {
	log.Println("Starting statistics worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatisticsWorker) Stop() error {
	log.Println("Stopping statistics worker...")
	return w.consumer.Close()
}

// RecoveryWorker periodically completes returns whose restock tail never
// finished (crash between the Return write and the checkpoint flip).
type RecoveryWorker struct {
	returns   *service.ReturnService
	interval  time.Duration
	grace     time.Duration
	batchSize int
}

// NewRecoveryWorker creates a recovery sweep worker
func NewRecoveryWorker(returns *service.ReturnService, interval, grace time.Duration, batchSize int) *RecoveryWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RecoveryWorker{
		returns:   returns,
		interval:  interval,
		grace:     grace,
		batchSize: batchSize,
	}
}

// Start runs the sweep until the context is cancelled
func (w *RecoveryWorker) Start(ctx context.Context) error {
	log.Printf("Starting recovery sweep: interval=%s, grace=%s", w.interval, w.grace)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Recovery sweep context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-w.grace)
			recovered, err := w.returns.RecoverUnrestocked(ctx, cutoff, w.batchSize)
			if err != nil {
				log.Printf("Recovery sweep error: %v", err)
				continue
			}
			if recovered > 0 {
				log.Printf("Recovery sweep completed %d returns", recovered)
			}
		}
	}
}
