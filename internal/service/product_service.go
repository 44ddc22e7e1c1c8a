package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/sequence"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// ProductService handles product creation and lookups. A brand-new product
// line gets its barcode from the sequence allocator on first stock-in.
type ProductService struct {
	repo      store.Repository
	allocator *sequence.Allocator
	namespace string
	logger    *zap.Logger
}

// NewProductService creates a product service.
func NewProductService(repo store.Repository, allocator *sequence.Allocator, namespace string) *ProductService {
	if namespace == "" {
		namespace = "barcode"
	}
	return &ProductService{
		repo:      repo,
		allocator: allocator,
		namespace: namespace,
		logger:    util.GetLogger(),
	}
}

// CreateProductRequest represents a first stock-in of a product line
type CreateProductRequest struct {
	Brand     string          `json:"brand" binding:"required"`
	Size      string          `json:"size"`
	Category  string          `json:"category"`
	Barcode   string          `json:"barcode,omitempty"`
	Quantity  int             `json:"quantity" binding:"min=0"`
	CostPrice decimal.Decimal `json:"cost_price"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateProduct stores a new product line, allocating a barcode when the
// request does not carry one.
func (s *ProductService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if req.Quantity < 0 {
		return nil, validationf("quantity must not be negative")
	}
	if req.CostPrice.IsNegative() || req.UnitPrice.IsNegative() {
		return nil, validationf("prices must not be negative")
	}

	barcode := req.Barcode
	if barcode == "" {
		var err error
		barcode, err = s.allocator.Next(ctx, s.namespace)
		if err != nil {
			return nil, err
		}
	}

	product := models.Product{
		ID:        uuid.NewString(),
		Brand:     req.Brand,
		Size:      req.Size,
		Category:  req.Category,
		Barcode:   barcode,
		Quantity:  req.Quantity,
		CostPrice: req.CostPrice.Round(2),
		UnitPrice: req.UnitPrice.Round(2),
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Product created",
		zap.String("product_id", created.ID),
		zap.String("barcode", created.Barcode),
		zap.Int("quantity", created.Quantity))
	return created, nil
}

// GetProduct retrieves a product by ID.
func (s *ProductService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	return s.repo.GetProductByID(ctx, productID)
}

// GetProductByBarcode retrieves a product by its scanned barcode.
func (s *ProductService) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	return s.repo.GetProductByBarcode(ctx, barcode)
}

// ListProducts retrieves all products.
func (s *ProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListProducts(ctx)
}

// DeleteProduct removes a product line. Sold lines keep their snapshot, so
// a later return recreates the product if needed.
func (s *ProductService) DeleteProduct(ctx context.Context, productID string) error {
	return s.repo.DeleteProduct(ctx, productID)
}
