package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/store/memory"
)

func newFixture(repo store.Repository) (*SaleService, *ReturnService) {
	ledger := NewInventoryLedger(repo)
	stats := NewStatsService(repo, nil)
	sales := NewSaleService(repo, ledger, stats, nil)
	returns := NewReturnService(repo, ledger, NewLocalLocker(), stats, nil, 0)
	return sales, returns
}

func seedProduct(t *testing.T, repo store.Repository, unitPrice, costPrice string, quantity int) *models.Product {
	t.Helper()
	product, err := repo.CreateProduct(context.Background(), models.Product{
		ID:        uuid.NewString(),
		Brand:     "Levis",
		Size:      "32",
		Category:  "jeans",
		Barcode:   uuid.NewString(),
		Quantity:  quantity,
		UnitPrice: decimal.RequireFromString(unitPrice),
		CostPrice: decimal.RequireFromString(costPrice),
	})
	require.NoError(t, err)
	return product
}

func makeSale(t *testing.T, sales *SaleService, items ...SaleItemRequest) *models.Sale {
	t.Helper()
	sale, err := sales.CreateSale(context.Background(), &CreateSaleRequest{
		Items:         items,
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	return sale
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s", expected, actual.String())
}

func TestProcessReturnRefundArithmetic(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)
	ctx := context.Background()

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 4})
	assertDecimal(t, "100.00", sale.TotalPrice)

	ret, err := returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2, Reason: "wrong size"}},
	})
	require.NoError(t, err)
	require.Len(t, ret.Items, 1)

	assertDecimal(t, "25", ret.Items[0].UnitPrice)
	assertDecimal(t, "50.00", ret.Items[0].RefundAmount)
	assertDecimal(t, "20.00", ret.Items[0].ProfitImpact)
	assertDecimal(t, "50.00", ret.TotalRefund)
	assertDecimal(t, "20.00", ret.TotalProfitImpact)
	assert.Equal(t, models.ReturnDocStatusProcessed, ret.Status)

	stored, err := repo.GetReturnByID(ctx, ret.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedInventory)

	restocked, err := repo.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, restocked.Quantity) // 10 - 4 + 2

	updated, err := repo.GetSaleByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusPartial, updated.ReturnStatus)
}

func TestProcessReturnSplitsLineDiscountEvenly(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{
		ProductID: product.ID,
		Quantity:  4,
		Discount:  decimal.RequireFromString("20"),
	})
	assertDecimal(t, "80.00", sale.Items[0].SellingPrice)

	ret, err := returns.ProcessReturn(context.Background(), &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)

	// 80 / 4 units: the discount is spread across the line, not front-loaded.
	assertDecimal(t, "20", ret.Items[0].UnitPrice)
	assertDecimal(t, "20.00", ret.Items[0].RefundAmount)
}

func TestProcessReturnFullLineRefundsExactTotal(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)

	// 150 gross - 50 discount = 100 over 3 units: the per-unit price does not
	// land on cents, but a full return must refund exactly the line total.
	product := seedProduct(t, repo, "50", "30", 5)
	sale := makeSale(t, sales, SaleItemRequest{
		ProductID: product.ID,
		Quantity:  3,
		Discount:  decimal.RequireFromString("50"),
	})
	assertDecimal(t, "100.00", sale.Items[0].SellingPrice)

	ret, err := returns.ProcessReturn(context.Background(), &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assertDecimal(t, "100.00", ret.TotalRefund)
}

func TestProcessReturnDerivesFullStatus(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)
	ctx := context.Background()

	first := seedProduct(t, repo, "25", "15", 10)
	second := seedProduct(t, repo, "40", "22", 10)
	sale := makeSale(t, sales,
		SaleItemRequest{ProductID: first.ID, Quantity: 3},
		SaleItemRequest{ProductID: second.ID, Quantity: 2},
	)

	_, err := returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 3}},
	})
	require.NoError(t, err)

	updated, err := repo.GetSaleByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusPartial, updated.ReturnStatus)

	_, err = returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[1].ID, Quantity: 2}},
	})
	require.NoError(t, err)

	updated, err = repo.GetSaleByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusFull, updated.ReturnStatus)
}

func TestProcessReturnRejectsOverReturnAcrossRequests(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)
	ctx := context.Background()

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 4})

	_, err := returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 3}},
	})
	require.NoError(t, err)

	_, err = returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	})
	var oerr *OverReturnError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, sale.Items[0].ID, oerr.SaleItemID)
	assert.Equal(t, 2, oerr.Requested)
	assert.Equal(t, 1, oerr.Remaining)

	// The rejected return left no trace: one return on record, stock moved
	// only by the accepted one.
	history, err := repo.ListReturnsBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	current, err := repo.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, current.Quantity) // 10 - 4 + 3
}

func TestProcessReturnRejectsOverReturnWithinOneRequest(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 4})

	// Two entries against the same line summing past the sold quantity.
	_, err := returns.ProcessReturn(context.Background(), &CreateReturnRequest{
		SaleID: sale.ID,
		Items: []ReturnItemRequest{
			{SaleItemID: sale.Items[0].ID, Quantity: 3},
			{SaleItemID: sale.Items[0].ID, Quantity: 2},
		},
	})
	var oerr *OverReturnError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, 1, oerr.Remaining)
}

func TestProcessReturnRejectsUnknownSaleLine(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 1})

	_, err := returns.ProcessReturn(context.Background(), &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: "no-such-line", Quantity: 1}},
	})
	var ierr *InvalidReferenceError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, sale.ID, ierr.SaleID)
	assert.Equal(t, "no-such-line", ierr.SaleItemID)
}

func TestProcessReturnUnknownSale(t *testing.T) {
	repo := memory.New()
	_, returns := newFixture(repo)

	_, err := returns.ProcessReturn(context.Background(), &CreateReturnRequest{
		SaleID: "no-such-sale",
		Items:  []ReturnItemRequest{{SaleItemID: "x", Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// flakyStore injects AdjustProductQuantity failures to simulate a crash
// between the return write and the restock step.
type flakyStore struct {
	store.Repository
	mu          sync.Mutex
	failAdjusts int
}

func (f *flakyStore) AdjustProductQuantity(ctx context.Context, productID string, delta int) error {
	f.mu.Lock()
	if f.failAdjusts > 0 {
		f.failAdjusts--
		f.mu.Unlock()
		return errors.New("injected adjust failure")
	}
	f.mu.Unlock()
	return f.Repository.AdjustProductQuantity(ctx, productID, delta)
}

func TestRecoverySweepFinishesInterruptedRestock(t *testing.T) {
	flaky := &flakyStore{Repository: memory.New()}
	sales, returns := newFixture(flaky)
	ctx := context.Background()

	product := seedProduct(t, flaky, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 4})

	flaky.failAdjusts = 1
	_, err := returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	})
	require.Error(t, err)

	// The return survived the failure with its restock checkpoint unset.
	history, err := flaky.ListReturnsBySale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].UpdatedInventory)

	current, err := flaky.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, current.Quantity) // deducted by the sale, not yet restocked

	recovered, err := returns.RecoverUnrestocked(ctx, time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	current, err = flaky.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, current.Quantity)

	history, err = flaky.ListReturnsBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, history[0].UpdatedInventory)

	updated, err := flaky.GetSaleByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusPartial, updated.ReturnStatus)

	// A second sweep finds nothing: recovery never double-restocks.
	recovered, err = returns.RecoverUnrestocked(ctx, time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	current, err = flaky.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, current.Quantity)
}

func TestRecoverySweepSkipsLockedSale(t *testing.T) {
	repo := memory.New()
	ledger := NewInventoryLedger(repo)
	stats := NewStatsService(repo, nil)
	locker := NewLocalLocker()
	sales := NewSaleService(repo, ledger, stats, nil)
	returns := NewReturnService(repo, ledger, locker, stats, nil, 0)
	ctx := context.Background()

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 2})

	ret, err := repo.CreateReturn(ctx, models.Return{
		ID:     uuid.NewString(),
		SaleID: sale.ID,
		Status: models.ReturnDocStatusProcessed,
		Items: []models.ReturnItem{{
			ID:               uuid.NewString(),
			SaleItemID:       sale.Items[0].ID,
			ProductID:        product.ID,
			ApprovedQuantity: 1,
			UnitPrice:        decimal.RequireFromString("25"),
			RefundAmount:     decimal.RequireFromString("25.00"),
			ProfitImpact:     decimal.RequireFromString("10.00"),
		}},
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	held, err := locker.AcquireLock(ctx, saleLockKey(sale.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	recovered, err := returns.RecoverUnrestocked(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	require.NoError(t, locker.ReleaseLock(ctx, saleLockKey(sale.ID)))

	recovered, err = returns.RecoverUnrestocked(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	current, err := repo.GetReturnByID(ctx, ret.ID)
	require.NoError(t, err)
	assert.True(t, current.UpdatedInventory)
}

func TestConcurrentReturnsNeverJointlyOverReturn(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)
	ctx := context.Background()

	product := seedProduct(t, repo, "25", "15", 10)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 3})

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := returns.ProcessReturn(ctx, &CreateReturnRequest{
				SaleID: sale.ID,
				Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			var oerr *OverReturnError
			assert.ErrorAs(t, err, &oerr)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of the two concurrent returns must be rejected")

	current, err := repo.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, current.Quantity) // 10 - 3 + 2
}

func TestRestockRecreatesDeletedProduct(t *testing.T) {
	repo := memory.New()
	sales, returns := newFixture(repo)
	ctx := context.Background()

	product := seedProduct(t, repo, "25", "15", 2)
	sale := makeSale(t, sales, SaleItemRequest{ProductID: product.ID, Quantity: 2})

	require.NoError(t, repo.DeleteProduct(ctx, product.ID))

	_, err := returns.ProcessReturn(ctx, &CreateReturnRequest{
		SaleID: sale.ID,
		Items:  []ReturnItemRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)

	recreated, err := repo.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, recreated.Quantity)
	assert.Equal(t, product.Barcode, recreated.Barcode)
	assert.Equal(t, product.Brand, recreated.Brand)
	assertDecimal(t, "25", recreated.UnitPrice)
	assertDecimal(t, "15", recreated.CostPrice)
}
