package store

import (
	"context"
	"errors"
	"time"

	"pos-service/internal/models"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a quantity decrement would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a uniqueness or compare-and-swap conflict.
	ErrConflict = errors.New("conflict")
)

// Repository is the persistence port for the five document collections:
// products, sales, returns, daily statistics and sequence counters. The
// collections are independent; every cross-collection invariant is enforced
// by the services, not the store.
type Repository interface {
	// Products
	CreateProduct(ctx context.Context, product models.Product) (*models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	// AdjustProductQuantity applies a delta atomically at the storage
	// layer. It returns ErrInsufficientStock if the result would be
	// negative and ErrNotFound if the product row is absent.
	AdjustProductQuantity(ctx context.Context, productID string, delta int) error
	DeleteProduct(ctx context.Context, productID string) error

	// Sales
	CreateSale(ctx context.Context, sale models.Sale) (*models.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*models.Sale, error)
	// GetSaleByIdempotencyKey returns (nil, nil) when no sale carries the key.
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error)
	UpdateSaleReturnStatus(ctx context.Context, saleID, status string) error

	// Returns
	CreateReturn(ctx context.Context, ret models.Return) (*models.Return, error)
	GetReturnByID(ctx context.Context, id string) (*models.Return, error)
	ListReturnsBySale(ctx context.Context, saleID string) ([]models.Return, error)
	ListReturns(ctx context.Context) ([]models.Return, error)
	ListReturnsBetween(ctx context.Context, from, to time.Time, statuses []string) ([]models.Return, error)
	MarkReturnInventoryUpdated(ctx context.Context, returnID string) error
	// ListUnrestockedReturns lists returns whose restock checkpoint has
	// not flipped and that were created before the cutoff.
	ListUnrestockedReturns(ctx context.Context, before time.Time, limit int) ([]models.Return, error)

	// Daily statistics
	UpsertDailyStatistics(ctx context.Context, stats models.DailyStatistics) error
	GetDailyStatistics(ctx context.Context, date string) (*models.DailyStatistics, error)
	ListDailyStatistics(ctx context.Context, fromDate, toDate string) ([]models.DailyStatistics, error)

	// Sequence counters
	GetSequenceCounter(ctx context.Context, namespace string) (*models.SequenceCounter, error)
	// CreateSequenceCounter fails with ErrConflict if the namespace exists.
	CreateSequenceCounter(ctx context.Context, counter models.SequenceCounter) error
	// CompareAndSwapSequenceCounter atomically replaces current with next.
	// It reports false when another caller won the race.
	CompareAndSwapSequenceCounter(ctx context.Context, current, next models.SequenceCounter) (bool, error)
}
