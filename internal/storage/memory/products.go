package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewProductRepository(products ...models.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]models.Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *ProductRepository) ListProducts(ctx context.Context, filter orders.ProductFilter) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []models.Product{}
	for _, p := range r.products {
		if !p.IsActive {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.FeaturedOnly && !p.IsFeatured {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, orders.ErrProductNotFound
	}
	return &p, nil
}

func (r *ProductRepository) CreateProduct(ctx context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.products[p.ID]
	if !ok {
		return orders.ErrProductNotFound
	}
	p.CreatedAt = current.CreatedAt
	p.Rating = current.Rating
	p.ReviewCount = current.ReviewCount
	r.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) DeactivateProduct(ctx context.Context, id string) (*models.Product, error) {
	return r.modify(id, func(p *models.Product) { p.IsActive = false })
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int) (*models.Product, error) {
	return r.modify(id, func(p *models.Product) { p.Stock = stock })
}

func (r *ProductRepository) modify(id string, apply func(*models.Product)) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, orders.ErrProductNotFound
	}
	apply(&p)
	p.UpdatedAt = time.Now().UTC()
	r.products[id] = p
	return &p, nil
}
