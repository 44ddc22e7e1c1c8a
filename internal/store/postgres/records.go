package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

// CreateSale inserts a sale and its line items in one transaction.
func (s *Store) CreateSale(ctx context.Context, sale models.Sale) (*models.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sales (id, total_price, bill_discount, payment_method, customer_contact, return_status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err = tx.QueryRowxContext(ctx, query,
		sale.ID, sale.TotalPrice, sale.BillDiscount, sale.PaymentMethod,
		sale.CustomerContact, sale.ReturnStatus, sale.IdempotencyKey,
	).Scan(&sale.CreatedAt)
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert sale: %w", err)
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		item.SaleID = sale.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, brand, size, category, barcode, quantity, unit_price, discount, selling_price, cost_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			item.ID, item.SaleID, item.ProductID, item.Brand, item.Size, item.Category,
			item.Barcode, item.Quantity, item.UnitPrice, item.Discount, item.SellingPrice, item.CostPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to insert sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByID retrieves a sale with its line items
func (s *Store) GetSaleByID(ctx context.Context, id string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &sale.Items,
		"SELECT * FROM sale_items WHERE sale_id = $1 ORDER BY id", id); err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key, nil if absent
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &sale.Items,
		"SELECT * FROM sale_items WHERE sale_id = $1 ORDER BY id", sale.ID); err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListSalesBetween retrieves sales created in [from, to] with their items
func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM sales WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at", from, to)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	index := make(map[string]*models.Sale, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
		index[sales[i].ID] = &sales[i]
	}

	query, args, err := sqlx.In("SELECT * FROM sale_items WHERE sale_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.SaleItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	for _, item := range items {
		sale := index[item.SaleID]
		sale.Items = append(sale.Items, item)
	}
	return sales, nil
}

// UpdateSaleReturnStatus updates the derived return status field
func (s *Store) UpdateSaleReturnStatus(ctx context.Context, saleID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sales SET return_status = $1 WHERE id = $2", status, saleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateReturn inserts a return and its items in one transaction.
func (s *Store) CreateReturn(ctx context.Context, ret models.Return) (*models.Return, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO returns (id, sale_id, reason, total_refund, total_profit_impact, status, updated_inventory)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err = tx.QueryRowxContext(ctx, query,
		ret.ID, ret.SaleID, ret.Reason, ret.TotalRefund, ret.TotalProfitImpact,
		ret.Status, ret.UpdatedInventory,
	).Scan(&ret.CreatedAt)
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert return: %w", err)
	}

	for i := range ret.Items {
		item := &ret.Items[i]
		item.ReturnID = ret.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO return_items (id, return_id, sale_item_id, product_id, requested_quantity, approved_quantity, unit_price, refund_amount, profit_impact, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, item.ReturnID, item.SaleItemID, item.ProductID,
			item.RequestedQuantity, item.ApprovedQuantity, item.UnitPrice,
			item.RefundAmount, item.ProfitImpact, item.Reason)
		if err != nil {
			return nil, fmt.Errorf("failed to insert return item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ret, nil
}

// GetReturnByID retrieves a return with its items
func (s *Store) GetReturnByID(ctx context.Context, id string) (*models.Return, error) {
	var ret models.Return
	err := s.db.GetContext(ctx, &ret, "SELECT * FROM returns WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachReturnItems(ctx, []*models.Return{&ret}); err != nil {
		return nil, err
	}
	return &ret, nil
}

// ListReturnsBySale retrieves all returns referencing a sale
func (s *Store) ListReturnsBySale(ctx context.Context, saleID string) ([]models.Return, error) {
	var returns []models.Return
	err := s.db.SelectContext(ctx, &returns,
		"SELECT * FROM returns WHERE sale_id = $1 ORDER BY created_at", saleID)
	if err != nil {
		return nil, err
	}
	return returns, s.attachItems(ctx, returns)
}

// ListReturns retrieves all returns
func (s *Store) ListReturns(ctx context.Context) ([]models.Return, error) {
	var returns []models.Return
	err := s.db.SelectContext(ctx, &returns, "SELECT * FROM returns ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	return returns, s.attachItems(ctx, returns)
}

// ListReturnsBetween retrieves returns created in [from, to], optionally
// filtered by status.
func (s *Store) ListReturnsBetween(ctx context.Context, from, to time.Time, statuses []string) ([]models.Return, error) {
	var returns []models.Return
	var err error
	if len(statuses) == 0 {
		err = s.db.SelectContext(ctx, &returns,
			"SELECT * FROM returns WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at", from, to)
	} else {
		var query string
		var args []interface{}
		query, args, err = sqlx.In(
			"SELECT * FROM returns WHERE created_at BETWEEN ? AND ? AND status IN (?) ORDER BY created_at",
			from, to, statuses)
		if err != nil {
			return nil, err
		}
		query = s.db.Rebind(query)
		err = s.db.SelectContext(ctx, &returns, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return returns, s.attachItems(ctx, returns)
}

// MarkReturnInventoryUpdated flips the restock checkpoint flag
func (s *Store) MarkReturnInventoryUpdated(ctx context.Context, returnID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE returns SET updated_inventory = TRUE WHERE id = $1", returnID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListUnrestockedReturns lists returns awaiting the recovery sweep
func (s *Store) ListUnrestockedReturns(ctx context.Context, before time.Time, limit int) ([]models.Return, error) {
	var returns []models.Return
	err := s.db.SelectContext(ctx, &returns,
		"SELECT * FROM returns WHERE updated_inventory = FALSE AND created_at < $1 ORDER BY created_at LIMIT $2",
		before, limit)
	if err != nil {
		return nil, err
	}
	return returns, s.attachItems(ctx, returns)
}

func (s *Store) attachItems(ctx context.Context, returns []models.Return) error {
	ptrs := make([]*models.Return, len(returns))
	for i := range returns {
		ptrs[i] = &returns[i]
	}
	return s.attachReturnItems(ctx, ptrs)
}

func (s *Store) attachReturnItems(ctx context.Context, returns []*models.Return) error {
	if len(returns) == 0 {
		return nil
	}
	ids := make([]string, len(returns))
	index := make(map[string]*models.Return, len(returns))
	for i, ret := range returns {
		ids[i] = ret.ID
		index[ret.ID] = ret
	}

	query, args, err := sqlx.In("SELECT * FROM return_items WHERE return_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var items []models.ReturnItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return err
	}
	for _, item := range items {
		ret := index[item.ReturnID]
		ret.Items = append(ret.Items, item)
	}
	return nil
}

// UpsertDailyStatistics replaces the materialized row for one day
func (s *Store) UpsertDailyStatistics(ctx context.Context, stats models.DailyStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_statistics (date, total_revenue, total_profit, returns_refund, returns_profit_impact, net_revenue, net_profit, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (date) DO UPDATE SET
			total_revenue = EXCLUDED.total_revenue,
			total_profit = EXCLUDED.total_profit,
			returns_refund = EXCLUDED.returns_refund,
			returns_profit_impact = EXCLUDED.returns_profit_impact,
			net_revenue = EXCLUDED.net_revenue,
			net_profit = EXCLUDED.net_profit,
			updated_at = NOW()`,
		stats.Date, stats.TotalRevenue, stats.TotalProfit, stats.ReturnsRefund,
		stats.ReturnsProfitImpact, stats.NetRevenue, stats.NetProfit)
	return err
}

// GetDailyStatistics retrieves one day's statistics document
func (s *Store) GetDailyStatistics(ctx context.Context, date string) (*models.DailyStatistics, error) {
	var stats models.DailyStatistics
	err := s.db.GetContext(ctx, &stats, "SELECT * FROM daily_statistics WHERE date = $1", date)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListDailyStatistics retrieves daily rows in [fromDate, toDate]
func (s *Store) ListDailyStatistics(ctx context.Context, fromDate, toDate string) ([]models.DailyStatistics, error) {
	var stats []models.DailyStatistics
	err := s.db.SelectContext(ctx, &stats,
		"SELECT * FROM daily_statistics WHERE date BETWEEN $1 AND $2 ORDER BY date", fromDate, toDate)
	return stats, err
}
