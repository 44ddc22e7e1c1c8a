package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

// Store is an in-memory Repository used by unit tests and dev mode. All
// methods are safe for concurrent use; the single mutex gives it the same
// per-document atomicity the postgres store gets from guarded updates.
type Store struct {
	mu               sync.RWMutex
	products         map[string]models.Product
	productByBarcode map[string]string
	sales            map[string]models.Sale
	saleByIdem       map[string]string
	returns          map[string]models.Return
	stats            map[string]models.DailyStatistics
	counters         map[string]models.SequenceCounter
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		products:         map[string]models.Product{},
		productByBarcode: map[string]string{},
		sales:            map[string]models.Sale{},
		saleByIdem:       map[string]string{},
		returns:          map[string]models.Return{},
		stats:            map[string]models.DailyStatistics{},
		counters:         map[string]models.SequenceCounter{},
	}
}

var _ store.Repository = (*Store)(nil)

func cloneSale(s models.Sale) models.Sale {
	out := s
	out.Items = append([]models.SaleItem(nil), s.Items...)
	return out
}

func cloneReturn(r models.Return) models.Return {
	out := r
	out.Items = append([]models.ReturnItem(nil), r.Items...)
	return out
}

func (s *Store) CreateProduct(_ context.Context, product models.Product) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.Barcode != "" {
		if _, exists := s.productByBarcode[product.Barcode]; exists {
			return nil, store.ErrConflict
		}
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.products[product.ID] = product
	if product.Barcode != "" {
		s.productByBarcode[product.Barcode] = product.ID
	}
	out := product
	return &out, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := product
	return &out, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productByBarcode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	out := product
	return &out, nil
}

func (s *Store) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out, nil
}

func (s *Store) AdjustProductQuantity(_ context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	next := product.Quantity + delta
	if next < 0 {
		return store.ErrInsufficientStock
	}
	product.Quantity = next
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.products, productID)
	delete(s.productByBarcode, product.Barcode)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale models.Sale) (*models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.saleByIdem[sale.IdempotencyKey]; exists {
			return nil, store.ErrConflict
		}
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	stored := cloneSale(sale)
	s.sales[sale.ID] = stored
	if sale.IdempotencyKey != "" {
		s.saleByIdem[sale.IdempotencyKey] = sale.ID
	}
	out := cloneSale(stored)
	return &out, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) GetSaleByIdempotencyKey(_ context.Context, key string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.saleByIdem[key]
	if !ok {
		return nil, nil
	}
	out := cloneSale(s.sales[id])
	return &out, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from, to time.Time) ([]models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Sale{}
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || sale.CreatedAt.After(to) {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateSaleReturnStatus(_ context.Context, saleID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return store.ErrNotFound
	}
	sale.ReturnStatus = status
	s.sales[saleID] = sale
	return nil
}

func (s *Store) CreateReturn(_ context.Context, ret models.Return) (*models.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.returns[ret.ID]; exists {
		return nil, store.ErrConflict
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	stored := cloneReturn(ret)
	s.returns[ret.ID] = stored
	out := cloneReturn(stored)
	return &out, nil
}

func (s *Store) GetReturnByID(_ context.Context, id string) (*models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneReturn(ret)
	return &out, nil
}

func (s *Store) ListReturnsBySale(_ context.Context, saleID string) ([]models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Return{}
	for _, ret := range s.returns {
		if ret.SaleID == saleID {
			out = append(out, cloneReturn(ret))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListReturns(_ context.Context) ([]models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Return, 0, len(s.returns))
	for _, ret := range s.returns {
		out = append(out, cloneReturn(ret))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListReturnsBetween(_ context.Context, from, to time.Time, statuses []string) ([]models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := map[string]bool{}
	for _, status := range statuses {
		wanted[strings.ToUpper(status)] = true
	}

	out := []models.Return{}
	for _, ret := range s.returns {
		if ret.CreatedAt.Before(from) || ret.CreatedAt.After(to) {
			continue
		}
		if len(wanted) > 0 && !wanted[ret.Status] {
			continue
		}
		out = append(out, cloneReturn(ret))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkReturnInventoryUpdated(_ context.Context, returnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, ok := s.returns[returnID]
	if !ok {
		return store.ErrNotFound
	}
	ret.UpdatedInventory = true
	s.returns[returnID] = ret
	return nil
}

func (s *Store) ListUnrestockedReturns(_ context.Context, before time.Time, limit int) ([]models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Return{}
	for _, ret := range s.returns {
		if ret.UpdatedInventory || !ret.CreatedAt.Before(before) {
			continue
		}
		out = append(out, cloneReturn(ret))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpsertDailyStatistics(_ context.Context, stats models.DailyStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats.UpdatedAt = time.Now().UTC()
	s.stats[stats.Date] = stats
	return nil
}

func (s *Store) GetDailyStatistics(_ context.Context, date string) (*models.DailyStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := stats
	return &out, nil
}

func (s *Store) ListDailyStatistics(_ context.Context, fromDate, toDate string) ([]models.DailyStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.DailyStatistics{}
	for date, stats := range s.stats {
		if date < fromDate || date > toDate {
			continue
		}
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) GetSequenceCounter(_ context.Context, namespace string) (*models.SequenceCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counter, ok := s.counters[namespace]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := counter
	return &out, nil
}

func (s *Store) CreateSequenceCounter(_ context.Context, counter models.SequenceCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.counters[counter.Namespace]; exists {
		return store.ErrConflict
	}
	counter.UpdatedAt = time.Now().UTC()
	s.counters[counter.Namespace] = counter
	return nil
}

func (s *Store) CompareAndSwapSequenceCounter(_ context.Context, current, next models.SequenceCounter) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.counters[current.Namespace]
	if !ok {
		return false, store.ErrNotFound
	}
	if stored.Letter != current.Letter || stored.Counter != current.Counter {
		return false, nil
	}
	next.Namespace = current.Namespace
	next.UpdatedAt = time.Now().UTC()
	s.counters[current.Namespace] = next
	return true, nil
}
