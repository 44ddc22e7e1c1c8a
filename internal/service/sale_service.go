package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// SaleService handles sale creation and lookups.
type SaleService struct {
	repo   store.Repository
	ledger *InventoryLedger
	stats  *StatsService
	events EventPublisher
	logger *zap.Logger
}

// NewSaleService creates a sale service. events may be nil.
func NewSaleService(repo store.Repository, ledger *InventoryLedger, stats *StatsService, events EventPublisher) *SaleService {
	return &SaleService{
		repo:   repo,
		ledger: ledger,
		stats:  stats,
		events: events,
		logger: util.GetLogger(),
	}
}

// SaleItemRequest represents one line of a sale request
type SaleItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Discount  decimal.Decimal `json:"discount"`
}

// CreateSaleRequest represents a request to create a sale
type CreateSaleRequest struct {
	Items           []SaleItemRequest `json:"items" binding:"required,min=1"`
	PaymentMethod   string            `json:"payment_method" binding:"required"`
	CustomerContact string            `json:"customer_contact,omitempty"`
	BillDiscount    decimal.Decimal   `json:"bill_discount"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
}

// CreateSale validates the request, decrements stock, persists the sale
// and refreshes today's statistics. On a duplicate idempotency key the
// existing sale is returned unchanged.
func (s *SaleService) CreateSale(ctx context.Context, req *CreateSaleRequest) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CreateSale")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetSaleByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate sale request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("sale_id", existing.ID))
			return existing, nil
		}
	}

	items, deltas, err := s.buildLines(ctx, req.Items)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	lineTotal := decimal.Zero
	for _, item := range items {
		lineTotal = lineTotal.Add(item.SellingPrice)
	}
	if req.BillDiscount.IsNegative() {
		util.SalesFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, validationf("bill discount must not be negative")
	}
	if req.BillDiscount.GreaterThan(lineTotal) {
		util.SalesFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, validationf("bill discount %s exceeds line total %s", req.BillDiscount, lineTotal)
	}

	if err := s.ledger.Deduct(ctx, deltas); err != nil {
		util.SalesFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	sale := models.Sale{
		ID:              uuid.NewString(),
		TotalPrice:      lineTotal.Sub(req.BillDiscount).Round(2),
		BillDiscount:    req.BillDiscount.Round(2),
		PaymentMethod:   req.PaymentMethod,
		CustomerContact: req.CustomerContact,
		ReturnStatus:    models.ReturnStatusNone,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       time.Now().UTC(),
		Items:           items,
	}
	for i := range sale.Items {
		sale.Items[i].SaleID = sale.ID
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		s.ledger.Release(ctx, deltas)
		util.SalesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}

	util.SalesCreatedTotal.Inc()
	s.logger.Info("Sale created",
		zap.String("sale_id", created.ID),
		zap.String("total_price", created.TotalPrice.String()),
		zap.Int("lines", len(created.Items)))

	s.publishSaleCreated(ctx, created)

	if _, err := s.stats.Recompute(ctx, created.CreatedAt); err != nil {
		// The statistics worker re-triggers the recompute from the
		// published event, so this is not fatal.
		s.logger.Error("Failed to recompute statistics after sale",
			zap.String("sale_id", created.ID), zap.Error(err))
	}

	return created, nil
}

// buildLines resolves products and snapshots prices onto sale lines.
func (s *SaleService) buildLines(ctx context.Context, reqs []SaleItemRequest) ([]models.SaleItem, []StockDelta, error) {
	items := make([]models.SaleItem, 0, len(reqs))
	deltas := make([]StockDelta, 0, len(reqs))

	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, nil, validationf("quantity must be positive, got %d", req.Quantity)
		}
		if req.Discount.IsNegative() {
			return nil, nil, validationf("discount must not be negative")
		}

		product, err := s.repo.GetProductByID(ctx, req.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, validationf("product %s not found", req.ProductID)
		}
		if err != nil {
			return nil, nil, err
		}

		qty := decimal.NewFromInt(int64(req.Quantity))
		gross := product.UnitPrice.Mul(qty)
		if req.Discount.GreaterThan(gross) {
			return nil, nil, validationf("discount %s exceeds line price %s for product %s",
				req.Discount, gross, req.ProductID)
		}

		items = append(items, models.SaleItem{
			ID:           uuid.NewString(),
			ProductID:    product.ID,
			Brand:        product.Brand,
			Size:         product.Size,
			Category:     product.Category,
			Barcode:      product.Barcode,
			Quantity:     req.Quantity,
			UnitPrice:    product.UnitPrice,
			Discount:     req.Discount.Round(2),
			SellingPrice: gross.Sub(req.Discount).Round(2),
			CostPrice:    product.CostPrice.Mul(qty).Round(2),
		})
		deltas = append(deltas, StockDelta{ProductID: product.ID, Quantity: req.Quantity})
	}
	return items, deltas, nil
}

func (s *SaleService) publishSaleCreated(ctx context.Context, sale *models.Sale) {
	if s.events == nil {
		return
	}
	lines := make([]models.SaleLineData, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, models.SaleLineData{
			SaleItemID: item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
		})
	}
	event := &models.SaleCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeSaleCreated,
			Timestamp: time.Now().UTC(),
		},
		SaleID:     sale.ID,
		TotalPrice: sale.TotalPrice.String(),
		Day:        sale.CreatedAt.Format(models.DateFormat),
		Items:      lines,
	}
	if err := s.events.PublishSaleCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleCreated event",
			zap.String("sale_id", sale.ID), zap.Error(err))
	}
}

// GetSale retrieves a sale with its line items.
func (s *SaleService) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	return s.repo.GetSaleByID(ctx, saleID)
}

// ListSales lists sales for one calendar day.
func (s *SaleService) ListSales(ctx context.Context, day time.Time) ([]models.Sale, error) {
	start, end := dayWindow(day)
	return s.repo.ListSalesBetween(ctx, start, end)
}
