package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

// Store is the postgres-backed Repository. Quantity and sequence updates
// are single guarded statements so concurrent callers serialize at the
// storage layer, never in application code.
type Store struct {
	db *sqlx.DB
}

var _ store.Repository = (*Store)(nil)

// New connects to postgres and verifies the connection.
func New(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateProduct inserts a new product row
func (s *Store) CreateProduct(ctx context.Context, product models.Product) (*models.Product, error) {
	query := `
		INSERT INTO products (id, brand, size, category, barcode, quantity, cost_price, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		product.ID, product.Brand, product.Size, product.Category,
		product.Barcode, product.Quantity, product.CostPrice, product.UnitPrice,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByBarcode retrieves a product by barcode
func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE barcode = $1", barcode)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY barcode")
	return products, err
}

// AdjustProductQuantity applies a stock delta in one guarded statement.
// The quantity + delta >= 0 guard makes underflow a no-op that the caller
// sees as ErrInsufficientStock.
func (s *Store) AdjustProductQuantity(ctx context.Context, productID string, delta int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2 AND quantity + $1 >= 0",
		delta, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

// DeleteProduct removes a product row
func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", productID)
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

// GetSequenceCounter retrieves the counter for a namespace
func (s *Store) GetSequenceCounter(ctx context.Context, namespace string) (*models.SequenceCounter, error) {
	var counter models.SequenceCounter
	err := s.db.GetContext(ctx, &counter,
		"SELECT * FROM sequence_counters WHERE namespace = $1", namespace)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

// CreateSequenceCounter inserts the first counter row for a namespace
func (s *Store) CreateSequenceCounter(ctx context.Context, counter models.SequenceCounter) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sequence_counters (namespace, letter, counter) VALUES ($1, $2, $3)",
		counter.Namespace, counter.Letter, counter.Counter)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

// CompareAndSwapSequenceCounter replaces the counter state only if it still
// matches what the caller read. A lost race reports (false, nil) and the
// caller retries.
func (s *Store) CompareAndSwapSequenceCounter(ctx context.Context, current, next models.SequenceCounter) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sequence_counters SET letter = $1, counter = $2, updated_at = NOW()
		 WHERE namespace = $3 AND letter = $4 AND counter = $5`,
		next.Letter, next.Counter, current.Namespace, current.Letter, current.Counter)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM sequence_counters WHERE namespace = $1)", current.Namespace); err != nil {
		return false, err
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}
