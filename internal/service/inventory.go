package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// StockDelta is one product-quantity movement.
type StockDelta struct {
	ProductID string
	Quantity  int
}

// InventoryLedger applies quantity deltas to product stock. All movements
// go through the store's atomic adjust, so concurrent sales and returns on
// the same product never lose an update.
type InventoryLedger struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewInventoryLedger creates an inventory ledger over the repository.
func NewInventoryLedger(repo store.Repository) *InventoryLedger {
	return &InventoryLedger{repo: repo, logger: util.GetLogger()}
}

// OnHand reports the current stock for a product.
func (l *InventoryLedger) OnHand(ctx context.Context, productID string) (int, error) {
	product, err := l.repo.GetProductByID(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.Quantity, nil
}

// Deduct decrements stock for every delta. If any line fails, deltas
// already applied are released again so a rejected sale leaves stock
// untouched.
func (l *InventoryLedger) Deduct(ctx context.Context, deltas []StockDelta) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Deduct")
	defer span.End()

	for i, delta := range deltas {
		if err := l.repo.AdjustProductQuantity(ctx, delta.ProductID, -delta.Quantity); err != nil {
			l.Release(ctx, deltas[:i])
			if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("product %s: %w", delta.ProductID, err)
			}
			return err
		}
	}
	return nil
}

// Release compensates already-applied decrements, e.g. after a partial
// deduction failure or when the sale record itself could not be written.
func (l *InventoryLedger) Release(ctx context.Context, applied []StockDelta) {
	for _, delta := range applied {
		if err := l.repo.AdjustProductQuantity(ctx, delta.ProductID, delta.Quantity); err != nil {
			l.logger.Error("Failed to release stock after partial deduction",
				zap.String("product_id", delta.ProductID),
				zap.Int("quantity", delta.Quantity),
				zap.Error(err))
		}
	}
}

// Restock increments stock for a returned line. If the product row was
// deleted after a prior sale drove it to zero, it is recreated from the
// attributes snapshotted on the sale line so the restocked units are not
// silently lost.
func (l *InventoryLedger) Restock(ctx context.Context, line models.SaleItem, quantity int) error {
	err := l.repo.AdjustProductQuantity(ctx, line.ProductID, quantity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	unitCost := line.CostPrice
	if line.Quantity > 0 {
		unitCost = line.CostPrice.DivRound(decimal.NewFromInt(int64(line.Quantity)), 2)
	}
	product := models.Product{
		ID:        line.ProductID,
		Brand:     line.Brand,
		Size:      line.Size,
		Category:  line.Category,
		Barcode:   line.Barcode,
		Quantity:  quantity,
		CostPrice: unitCost,
		UnitPrice: line.UnitPrice,
	}
	_, err = l.repo.CreateProduct(ctx, product)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race against a concurrent recreation, apply the delta
		// to the row that won.
		return l.repo.AdjustProductQuantity(ctx, line.ProductID, quantity)
	}
	if err != nil {
		return err
	}
	l.logger.Info("Recreated product from sale line snapshot",
		zap.String("product_id", line.ProductID),
		zap.String("barcode", line.Barcode),
		zap.Int("quantity", quantity))
	return nil
}
