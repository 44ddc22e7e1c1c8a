package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// ReturnService reconciles returns against sale history. Returns on the
// same sale serialize on a per-sale lock held for the whole operation, so
// two concurrent partial returns can never jointly over-return a line.
type ReturnService struct {
	repo    store.Repository
	ledger  *InventoryLedger
	locker  Locker
	stats   *StatsService
	events  EventPublisher
	logger  *zap.Logger
	lockTTL time.Duration
}

// NewReturnService creates a return service. events may be nil.
func NewReturnService(repo store.Repository, ledger *InventoryLedger, locker Locker, stats *StatsService, events EventPublisher, lockTTL time.Duration) *ReturnService {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &ReturnService{
		repo:    repo,
		ledger:  ledger,
		locker:  locker,
		stats:   stats,
		events:  events,
		logger:  util.GetLogger(),
		lockTTL: lockTTL,
	}
}

// ReturnItemRequest represents one requested return line
type ReturnItemRequest struct {
	SaleItemID string `json:"sale_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	Reason     string `json:"reason,omitempty"`
}

// CreateReturnRequest represents a request to return items from a sale
type CreateReturnRequest struct {
	SaleID string              `json:"sale_id" binding:"required"`
	Items  []ReturnItemRequest `json:"items" binding:"required,min=1"`
	Reason string              `json:"reason,omitempty"`
}

func saleLockKey(saleID string) string {
	return "sale:" + saleID
}

// ProcessReturn validates a return against the sale's history, persists
// it, restocks inventory and updates the sale's aggregate return status.
//
// The Return write is the durability checkpoint: if anything after it
// fails, the return stays persisted with updated_inventory = false and the
// recovery sweep finishes the tail.
func (s *ReturnService) ProcessReturn(ctx context.Context, req *CreateReturnRequest) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.ProcessReturn")
	defer span.End()

	key := saleLockKey(req.SaleID)
	if err := acquireWithRetry(ctx, s.locker, key, s.lockTTL); err != nil {
		util.ReturnsFailedTotal.WithLabelValues("lock_contention").Inc()
		return nil, err
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, key); err != nil {
			s.logger.Error("Failed to release sale lock", zap.String("sale_id", req.SaleID), zap.Error(err))
		}
	}()

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		util.ReturnsFailedTotal.WithLabelValues("sale_not_found").Inc()
		return nil, err
	}

	lines := make(map[string]models.SaleItem, len(sale.Items))
	for _, line := range sale.Items {
		lines[line.ID] = line
	}

	already, err := s.approvedReturnedQty(ctx, sale.ID)
	if err != nil {
		return nil, err
	}

	items := make([]models.ReturnItem, 0, len(req.Items))
	totalRefund := decimal.Zero
	totalProfit := decimal.Zero
	requested := map[string]int{}

	for _, item := range req.Items {
		line, ok := lines[item.SaleItemID]
		if !ok {
			util.ReturnsFailedTotal.WithLabelValues("invalid_reference").Inc()
			return nil, &InvalidReferenceError{SaleID: sale.ID, SaleItemID: item.SaleItemID}
		}

		remaining := line.Quantity - already[line.ID] - requested[line.ID]
		if item.Quantity <= 0 || item.Quantity > remaining {
			util.ReturnsFailedTotal.WithLabelValues("over_return").Inc()
			return nil, &OverReturnError{SaleItemID: line.ID, Requested: item.Quantity, Remaining: remaining}
		}
		requested[line.ID] += item.Quantity

		// Auto-approval policy: every requested unit is approved.
		approved := item.Quantity
		qty := decimal.NewFromInt(int64(line.Quantity))
		approvedDec := decimal.NewFromInt(int64(approved))
		unitPrice := line.SellingPrice.Div(qty)
		unitCost := line.CostPrice.Div(qty)

		reason := item.Reason
		if reason == "" {
			reason = req.Reason
		}

		refund := unitPrice.Mul(approvedDec).Round(2)
		profit := unitPrice.Sub(unitCost).Mul(approvedDec).Round(2)
		items = append(items, models.ReturnItem{
			ID:                uuid.NewString(),
			SaleItemID:        line.ID,
			ProductID:         line.ProductID,
			RequestedQuantity: item.Quantity,
			ApprovedQuantity:  approved,
			UnitPrice:         unitPrice,
			RefundAmount:      refund,
			ProfitImpact:      profit,
			Reason:            reason,
		})
		totalRefund = totalRefund.Add(refund)
		totalProfit = totalProfit.Add(profit)
	}

	ret := models.Return{
		ID:                uuid.NewString(),
		SaleID:            sale.ID,
		Reason:            req.Reason,
		TotalRefund:       totalRefund.Round(2),
		TotalProfitImpact: totalProfit.Round(2),
		Status:            models.ReturnDocStatusProcessed,
		UpdatedInventory:  false,
		CreatedAt:         time.Now().UTC(),
		Items:             items,
	}
	for i := range ret.Items {
		ret.Items[i].ReturnID = ret.ID
	}

	created, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		util.ReturnsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create return: %w", err)
	}

	if err := s.completeReturn(ctx, created, sale); err != nil {
		// The return is durable; the sweep will rerun the tail.
		s.logger.Error("Return tail failed, left for recovery sweep",
			zap.String("return_id", created.ID),
			zap.String("sale_id", sale.ID),
			zap.Error(err))
		return nil, fmt.Errorf("return %s persisted but restock incomplete: %w", created.ID, err)
	}

	util.ReturnsProcessedTotal.Inc()
	s.logger.Info("Return processed",
		zap.String("return_id", created.ID),
		zap.String("sale_id", sale.ID),
		zap.String("total_refund", created.TotalRefund.String()))

	s.publishReturnProcessed(ctx, created)
	return created, nil
}

// completeReturn runs the post-checkpoint tail: restock, flag flip, sale
// status recomputation, statistics refresh. Safe to rerun for any return
// whose updated_inventory flag is still false.
func (s *ReturnService) completeReturn(ctx context.Context, ret *models.Return, sale *models.Sale) error {
	start := time.Now()
	defer func() {
		util.RestockLatency.Observe(time.Since(start).Seconds())
	}()

	lines := make(map[string]models.SaleItem, len(sale.Items))
	for _, line := range sale.Items {
		lines[line.ID] = line
	}

	for _, item := range ret.Items {
		line, ok := lines[item.SaleItemID]
		if !ok {
			return fmt.Errorf("return %s references unknown sale line %s", ret.ID, item.SaleItemID)
		}
		if err := s.ledger.Restock(ctx, line, item.ApprovedQuantity); err != nil {
			return fmt.Errorf("failed to restock product %s: %w", item.ProductID, err)
		}
	}

	if err := s.repo.MarkReturnInventoryUpdated(ctx, ret.ID); err != nil {
		return fmt.Errorf("failed to flip restock checkpoint: %w", err)
	}

	status, err := s.deriveReturnStatus(ctx, sale)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateSaleReturnStatus(ctx, sale.ID, status); err != nil {
		return fmt.Errorf("failed to update sale return status: %w", err)
	}

	if _, err := s.stats.Recompute(ctx, ret.CreatedAt); err != nil {
		return fmt.Errorf("failed to recompute statistics: %w", err)
	}
	return nil
}

// approvedReturnedQty scans the sale's return history and sums approved
// quantities per sale line. The scan, not a counter on the sale, is the
// source of truth: a return rejected later self-heals without
// compensating writes.
func (s *ReturnService) approvedReturnedQty(ctx context.Context, saleID string) (map[string]int, error) {
	returns, err := s.repo.ListReturnsBySale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, ret := range returns {
		if ret.Status != models.ReturnDocStatusApproved && ret.Status != models.ReturnDocStatusProcessed {
			continue
		}
		for _, item := range ret.Items {
			out[item.SaleItemID] += item.ApprovedQuantity
		}
	}
	return out, nil
}

// deriveReturnStatus recomputes the sale's aggregate status from its
// return history: FULL when every line is fully returned, PARTIAL when at
// least one unit came back, NONE otherwise.
func (s *ReturnService) deriveReturnStatus(ctx context.Context, sale *models.Sale) (string, error) {
	returned, err := s.approvedReturnedQty(ctx, sale.ID)
	if err != nil {
		return "", err
	}

	anyReturned := false
	allFull := true
	for _, line := range sale.Items {
		qty := returned[line.ID]
		if qty > 0 {
			anyReturned = true
		}
		if qty < line.Quantity {
			allFull = false
		}
	}
	switch {
	case allFull && len(sale.Items) > 0:
		return models.ReturnStatusFull, nil
	case anyReturned:
		return models.ReturnStatusPartial, nil
	default:
		return models.ReturnStatusNone, nil
	}
}

// RecoverUnrestocked finishes the tail of returns whose restock checkpoint
// never flipped. The grace cutoff keeps the sweep from racing a return
// that is still in flight; the per-sale lock covers the rest. Reports how
// many returns were recovered.
func (s *ReturnService) RecoverUnrestocked(ctx context.Context, before time.Time, limit int) (int, error) {
	pending, err := s.repo.ListUnrestockedReturns(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, ret := range pending {
		if err := s.recoverOne(ctx, ret); err != nil {
			s.logger.Error("Recovery sweep failed for return",
				zap.String("return_id", ret.ID),
				zap.String("sale_id", ret.SaleID),
				zap.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (s *ReturnService) recoverOne(ctx context.Context, ret models.Return) error {
	key := saleLockKey(ret.SaleID)
	ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return nil // a live return on this sale holds the lock, next sweep retries
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, key); err != nil {
			s.logger.Error("Failed to release sale lock", zap.String("sale_id", ret.SaleID), zap.Error(err))
		}
	}()

	// Re-read under the lock: the flag may have flipped since the scan.
	current, err := s.repo.GetReturnByID(ctx, ret.ID)
	if err != nil {
		return err
	}
	if current.UpdatedInventory {
		return nil
	}

	sale, err := s.repo.GetSaleByID(ctx, current.SaleID)
	if err != nil {
		return fmt.Errorf("sale %s for return %s: %w", current.SaleID, current.ID, err)
	}

	if err := s.completeReturn(ctx, current, sale); err != nil {
		return err
	}

	util.ReturnsRecoveredTotal.Inc()
	s.logger.Info("Recovered unrestocked return",
		zap.String("return_id", current.ID),
		zap.String("sale_id", current.SaleID))

	if s.events != nil {
		event := &models.ReturnRecoveredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.NewString(),
				EventType: models.EventTypeReturnRecovered,
				Timestamp: time.Now().UTC(),
			},
			ReturnID: current.ID,
			SaleID:   current.SaleID,
			Day:      current.CreatedAt.Format(models.DateFormat),
		}
		if err := s.events.PublishReturnRecovered(ctx, event); err != nil {
			s.logger.Error("Failed to publish ReturnRecovered event",
				zap.String("return_id", current.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *ReturnService) publishReturnProcessed(ctx context.Context, ret *models.Return) {
	if s.events == nil {
		return
	}
	event := &models.ReturnProcessedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeReturnProcessed,
			Timestamp: time.Now().UTC(),
		},
		ReturnID:    ret.ID,
		SaleID:      ret.SaleID,
		TotalRefund: ret.TotalRefund.String(),
		Day:         ret.CreatedAt.Format(models.DateFormat),
	}
	if err := s.events.PublishReturnProcessed(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnProcessed event",
			zap.String("return_id", ret.ID), zap.Error(err))
	}
}

// GetReturn retrieves a return with its items.
func (s *ReturnService) GetReturn(ctx context.Context, returnID string) (*models.Return, error) {
	return s.repo.GetReturnByID(ctx, returnID)
}

// ListReturns lists returns, optionally filtered by sale.
func (s *ReturnService) ListReturns(ctx context.Context, saleID string) ([]models.Return, error) {
	if saleID != "" {
		return s.repo.ListReturnsBySale(ctx, saleID)
	}
	return s.repo.ListReturns(ctx)
}
