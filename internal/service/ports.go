package service

import (
	"context"

	"pos-service/internal/models"
)

// EventPublisher abstracts the broker so services can run without kafka
// (tests, dev mode). Publish failures are logged, never propagated: the
// durable write has already happened and the statistics consumer is a
// second trigger for an idempotent recompute, not a requirement.
type EventPublisher interface {
	PublishSaleCreated(ctx context.Context, event *models.SaleCreatedEvent) error
	PublishReturnProcessed(ctx context.Context, event *models.ReturnProcessedEvent) error
	PublishReturnRecovered(ctx context.Context, event *models.ReturnRecoveredEvent) error
}

// StatsCache is a read-through cache for daily statistics documents,
// invalidated on every recompute.
type StatsCache interface {
	GetDailyStatistics(ctx context.Context, date string) (*models.DailyStatistics, error)
	SetDailyStatistics(ctx context.Context, stats models.DailyStatistics) error
	InvalidateDailyStatistics(ctx context.Context, date string) error
}
