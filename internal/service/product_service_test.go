package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/sequence"
	"pos-service/internal/store"
	"pos-service/internal/store/memory"
)

func newProductService(repo store.Repository) *ProductService {
	return NewProductService(repo, sequence.NewAllocator(repo), "")
}

func TestCreateProductAllocatesBarcode(t *testing.T) {
	products := newProductService(memory.New())
	ctx := context.Background()

	first, err := products.CreateProduct(ctx, &CreateProductRequest{
		Brand:     "Levis",
		Size:      "32",
		Category:  "jeans",
		Quantity:  10,
		CostPrice: decimal.RequireFromString("15"),
		UnitPrice: decimal.RequireFromString("25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "A0001", first.Barcode)

	second, err := products.CreateProduct(ctx, &CreateProductRequest{
		Brand:    "Levis",
		Size:     "34",
		Category: "jeans",
	})
	require.NoError(t, err)
	assert.Equal(t, "A0002", second.Barcode)
}

func TestCreateProductKeepsProvidedBarcode(t *testing.T) {
	products := newProductService(memory.New())

	created, err := products.CreateProduct(context.Background(), &CreateProductRequest{
		Brand:   "Levis",
		Barcode: "X1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "X1234", created.Barcode)
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	products := newProductService(memory.New())
	ctx := context.Background()

	_, err := products.CreateProduct(ctx, &CreateProductRequest{Brand: "Levis", Barcode: "X1234"})
	require.NoError(t, err)

	_, err = products.CreateProduct(ctx, &CreateProductRequest{Brand: "Wrangler", Barcode: "X1234"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCreateProductRejectsNegativePrices(t *testing.T) {
	products := newProductService(memory.New())

	_, err := products.CreateProduct(context.Background(), &CreateProductRequest{
		Brand:     "Levis",
		UnitPrice: decimal.RequireFromString("-1"),
	})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetProductByBarcode(t *testing.T) {
	products := newProductService(memory.New())
	ctx := context.Background()

	created, err := products.CreateProduct(ctx, &CreateProductRequest{Brand: "Levis"})
	require.NoError(t, err)

	found, err := products.GetProductByBarcode(ctx, created.Barcode)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = products.GetProductByBarcode(ctx, "Z9999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
