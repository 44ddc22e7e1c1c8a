package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

func TestAdjustProductQuantityGuards(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, models.Product{ID: "p1", Barcode: "A0001", Quantity: 5})
	require.NoError(t, err)

	assert.ErrorIs(t, s.AdjustProductQuantity(ctx, "missing", -1), store.ErrNotFound)
	assert.ErrorIs(t, s.AdjustProductQuantity(ctx, "p1", -6), store.ErrInsufficientStock)

	require.NoError(t, s.AdjustProductQuantity(ctx, "p1", -5))
	product, err := s.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Quantity)

	// Stock never goes below zero, even from zero.
	assert.ErrorIs(t, s.AdjustProductQuantity(ctx, "p1", -1), store.ErrInsufficientStock)
}

func TestSaleIdempotencyKeyLookup(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateSale(ctx, models.Sale{ID: "s1", IdempotencyKey: "key-1"})
	require.NoError(t, err)

	found, err := s.GetSaleByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "s1", found.ID)

	missing, err := s.GetSaleByIdempotencyKey(ctx, "key-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.CreateSale(ctx, models.Sale{ID: "s2", IdempotencyKey: "key-1"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCompareAndSwapSequenceCounterDetectsStaleState(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateSequenceCounter(ctx, models.SequenceCounter{
		Namespace: "barcode", Letter: "A", Counter: 1,
	}))

	swapped, err := s.CompareAndSwapSequenceCounter(ctx,
		models.SequenceCounter{Namespace: "barcode", Letter: "A", Counter: 1},
		models.SequenceCounter{Namespace: "barcode", Letter: "A", Counter: 2},
	)
	require.NoError(t, err)
	assert.True(t, swapped)

	// A swap from the old observed state must fail.
	swapped, err = s.CompareAndSwapSequenceCounter(ctx,
		models.SequenceCounter{Namespace: "barcode", Letter: "A", Counter: 1},
		models.SequenceCounter{Namespace: "barcode", Letter: "A", Counter: 2},
	)
	require.NoError(t, err)
	assert.False(t, swapped)

	current, err := s.GetSequenceCounter(ctx, "barcode")
	require.NoError(t, err)
	assert.Equal(t, 2, current.Counter)
}

func TestListUnrestockedReturns(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id string, age time.Duration, restocked bool) {
		_, err := s.CreateReturn(ctx, models.Return{
			ID:               id,
			SaleID:           "s1",
			Status:           models.ReturnDocStatusProcessed,
			UpdatedInventory: restocked,
			CreatedAt:        now.Add(-age),
		})
		require.NoError(t, err)
	}
	mk("old-pending", 10*time.Minute, false)
	mk("older-pending", 20*time.Minute, false)
	mk("old-done", 15*time.Minute, true)
	mk("fresh-pending", 10*time.Second, false)

	pending, err := s.ListUnrestockedReturns(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "older-pending", pending[0].ID) // oldest first
	assert.Equal(t, "old-pending", pending[1].ID)

	limited, err := s.ListUnrestockedReturns(ctx, now.Add(-time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "older-pending", limited[0].ID)

	require.NoError(t, s.MarkReturnInventoryUpdated(ctx, "older-pending"))
	pending, err = s.ListUnrestockedReturns(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "old-pending", pending[0].ID)
}

func TestReturnsBetweenFiltersStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i, status := range []string{
		models.ReturnDocStatusProcessed,
		models.ReturnDocStatusApproved,
		models.ReturnDocStatusRejected,
	} {
		_, err := s.CreateReturn(ctx, models.Return{
			ID:        string(rune('a' + i)),
			SaleID:    "s1",
			Status:    status,
			CreatedAt: at,
		})
		require.NoError(t, err)
	}

	from := at.Add(-time.Hour)
	to := at.Add(time.Hour)
	got, err := s.ListReturnsBetween(ctx, from, to,
		[]string{models.ReturnDocStatusApproved, models.ReturnDocStatusProcessed})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBarcodeUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, models.Product{ID: "p1", Barcode: "A0001"})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, models.Product{ID: "p2", Barcode: "A0001"})
	assert.ErrorIs(t, err, store.ErrConflict)

	// Deleting the holder frees the barcode.
	require.NoError(t, s.DeleteProduct(ctx, "p1"))
	_, err = s.CreateProduct(ctx, models.Product{ID: "p2", Barcode: "A0001"})
	assert.NoError(t, err)
}
