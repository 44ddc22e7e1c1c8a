package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// StatsService materializes per-day revenue and profit figures. Recompute
// is always a full rebuild from that day's sales and returns, which makes
// it idempotent: running it twice over the same data yields identical
// documents.
type StatsService struct {
	repo   store.Repository
	cache  StatsCache
	logger *zap.Logger
}

// NewStatsService creates a statistics service. cache may be nil.
func NewStatsService(repo store.Repository, cache StatsCache) *StatsService {
	return &StatsService{repo: repo, cache: cache, logger: util.GetLogger()}
}

// dayWindow returns the inclusive [start, end] bounds of the calendar day
// containing t, in t's location.
func dayWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := start.Add(24*time.Hour - time.Nanosecond)
	return start, end
}

// Recompute rebuilds the statistics document for the calendar day of t and
// upserts it.
func (s *StatsService) Recompute(ctx context.Context, t time.Time) (*models.DailyStatistics, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.Recompute")
	defer span.End()

	started := time.Now()
	defer func() {
		util.StatsRecomputeLatency.Observe(time.Since(started).Seconds())
	}()

	start, end := dayWindow(t)
	date := start.Format(models.DateFormat)

	sales, err := s.repo.ListSalesBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sales for %s: %w", date, err)
	}

	grossRevenue := decimal.Zero
	grossProfit := decimal.Zero
	for _, sale := range sales {
		for _, line := range sale.Items {
			grossRevenue = grossRevenue.Add(line.SellingPrice)
			grossProfit = grossProfit.Add(line.SellingPrice.Sub(line.CostPrice))
		}
	}

	returns, err := s.repo.ListReturnsBetween(ctx, start, end,
		[]string{models.ReturnDocStatusApproved, models.ReturnDocStatusProcessed})
	if err != nil {
		return nil, fmt.Errorf("failed to scan returns for %s: %w", date, err)
	}

	returnsRefund := decimal.Zero
	returnsProfit := decimal.Zero
	for _, ret := range returns {
		for _, item := range ret.Items {
			returnsRefund = returnsRefund.Add(item.RefundAmount)
			returnsProfit = returnsProfit.Add(item.ProfitImpact)
		}
	}

	stats := models.DailyStatistics{
		Date:                date,
		TotalRevenue:        grossRevenue.Round(2),
		TotalProfit:         grossProfit.Round(2),
		ReturnsRefund:       returnsRefund.Round(2),
		ReturnsProfitImpact: returnsProfit.Round(2),
		NetRevenue:          grossRevenue.Sub(returnsRefund).Round(2),
		NetProfit:           grossProfit.Sub(returnsProfit).Round(2),
	}

	if err := s.repo.UpsertDailyStatistics(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to upsert statistics for %s: %w", date, err)
	}
	util.StatsRecomputeTotal.Inc()

	if s.cache != nil {
		if err := s.cache.InvalidateDailyStatistics(ctx, date); err != nil {
			s.logger.Warn("Failed to invalidate statistics cache",
				zap.String("date", date), zap.Error(err))
		}
	}

	s.logger.Info("Recomputed daily statistics",
		zap.String("date", date),
		zap.Int("sales", len(sales)),
		zap.Int("returns", len(returns)))
	return &stats, nil
}

// RecomputeDate is Recompute for an ISO date string (used by the
// statistics worker).
func (s *StatsService) RecomputeDate(ctx context.Context, date string) (*models.DailyStatistics, error) {
	day, err := time.ParseInLocation(models.DateFormat, date, time.UTC)
	if err != nil {
		return nil, validationf("invalid date %q: %v", date, err)
	}
	return s.Recompute(ctx, day)
}

// GetDay returns one day's statistics, read through the cache when
// configured. A day with no activity yields a zero-valued document.
func (s *StatsService) GetDay(ctx context.Context, date string) (*models.DailyStatistics, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetDailyStatistics(ctx, date); err == nil && cached != nil {
			return cached, nil
		}
	}

	stats, err := s.repo.GetDailyStatistics(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		return &models.DailyStatistics{
			Date:                date,
			TotalRevenue:        decimal.Zero,
			TotalProfit:         decimal.Zero,
			ReturnsRefund:       decimal.Zero,
			ReturnsProfitImpact: decimal.Zero,
			NetRevenue:          decimal.Zero,
			NetProfit:           decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDailyStatistics(ctx, *stats); err != nil {
			s.logger.Warn("Failed to cache statistics", zap.String("date", date), zap.Error(err))
		}
	}
	return stats, nil
}

// GetStatistics returns stored daily rows in [startDate, endDate], grouped
// by day (default), month or year. Grouping is a pure aggregation over the
// daily rows.
func (s *StatsService) GetStatistics(ctx context.Context, startDate, endDate, groupBy string) ([]models.DailyStatistics, error) {
	if _, err := time.Parse(models.DateFormat, startDate); err != nil {
		return nil, validationf("invalid start date %q", startDate)
	}
	if _, err := time.Parse(models.DateFormat, endDate); err != nil {
		return nil, validationf("invalid end date %q", endDate)
	}
	if startDate > endDate {
		return nil, validationf("start date %s after end date %s", startDate, endDate)
	}

	days, err := s.repo.ListDailyStatistics(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	var keyLen int
	switch groupBy {
	case "", "day":
		return days, nil
	case "month":
		keyLen = len("2006-01")
	case "year":
		keyLen = len("2006")
	default:
		return nil, validationf("invalid group_by %q, want day, month or year", groupBy)
	}

	grouped := []models.DailyStatistics{}
	index := map[string]int{}
	for _, day := range days {
		key := day.Date[:keyLen]
		i, ok := index[key]
		if !ok {
			index[key] = len(grouped)
			grouped = append(grouped, models.DailyStatistics{
				Date:                key,
				TotalRevenue:        decimal.Zero,
				TotalProfit:         decimal.Zero,
				ReturnsRefund:       decimal.Zero,
				ReturnsProfitImpact: decimal.Zero,
				NetRevenue:          decimal.Zero,
				NetProfit:           decimal.Zero,
			})
			i = len(grouped) - 1
		}
		bucket := &grouped[i]
		bucket.TotalRevenue = bucket.TotalRevenue.Add(day.TotalRevenue)
		bucket.TotalProfit = bucket.TotalProfit.Add(day.TotalProfit)
		bucket.ReturnsRefund = bucket.ReturnsRefund.Add(day.ReturnsRefund)
		bucket.ReturnsProfitImpact = bucket.ReturnsProfitImpact.Add(day.ReturnsProfitImpact)
		bucket.NetRevenue = bucket.NetRevenue.Add(day.NetRevenue)
		bucket.NetProfit = bucket.NetProfit.Add(day.NetProfit)
		if day.UpdatedAt.After(bucket.UpdatedAt) {
			bucket.UpdatedAt = day.UpdatedAt
		}
	}
	return grouped, nil
}
