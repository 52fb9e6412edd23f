// Package memory keeps orders and products in process memory. It backs the
// tests and the STORAGE=memory development mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]*models.Order
	byNumber  map[string]string
	callbacks map[string]string
	now       func() time.Time
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:    make(map[string]*models.Order),
		byNumber:  make(map[string]string),
		callbacks: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byNumber[order.OrderNumber]; taken {
		return orders.ErrDuplicateOrderNumber
	}
	stored := clone(*order)
	r.orders[order.ID] = &stored
	r.byNumber[order.OrderNumber] = order.ID
	return nil
}

// lookup must be called with the lock held.
func (r *OrderRepository) lookup(identifier string) (*models.Order, bool) {
	if o, ok := r.orders[identifier]; ok {
		return o, true
	}
	if id, ok := r.byNumber[identifier]; ok {
		return r.orders[id], true
	}
	return nil, false
}

func (r *OrderRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.lookup(identifier)
	if !ok {
		return nil, orders.ErrNotFound
	}
	found := clone(*o)
	return &found, nil
}

func (r *OrderRepository) FindByEmail(ctx context.Context, email string) ([]models.Order, error) {
	return r.collect(0, func(o *models.Order) bool {
		return !o.IsArchived && strings.EqualFold(o.Customer.Email, email)
	}), nil
}

func (r *OrderRepository) FindByPhone(ctx context.Context, digits string, limit int) ([]models.Order, error) {
	return r.collect(limit, func(o *models.Order) bool {
		return !o.IsArchived && strings.Contains(orders.OnlyDigits(o.Customer.Phone), digits)
	}), nil
}

func (r *OrderRepository) List(ctx context.Context, filter orders.ListFilter) ([]models.Order, int, error) {
	matched := r.collect(0, func(o *models.Order) bool {
		if o.IsArchived && !filter.IncludeArchived {
			return false
		}
		if filter.Status != "" && o.Status != filter.Status {
			return false
		}
		return filter.Service == "" || o.Service() == filter.Service
	})

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// collect returns matching orders newest first, truncated to limit when
// limit is positive.
func (r *OrderRepository) collect(limit int, match func(*models.Order) bool) []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []models.Order{}
	for _, o := range r.orders {
		if match(o) {
			result = append(result, clone(*o))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].OrderNumber > result[j].OrderNumber
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (r *OrderRepository) Update(ctx context.Context, identifier string, patch orders.Patch) (*models.Order, error) {
	return r.mutate(identifier, func(o *models.Order) {
		patch.Apply(o, r.now())
	})
}

func (r *OrderRepository) IncrementViews(ctx context.Context, identifier string) (*models.Order, error) {
	return r.mutate(identifier, func(o *models.Order) {
		o.Views++
	})
}

func (r *OrderRepository) Archive(ctx context.Context, identifier string) (*models.Order, error) {
	return r.mutate(identifier, func(o *models.Order) {
		if !o.IsArchived {
			o.IsArchived = true
			o.UpdatedAt = r.now()
		}
	})
}

func (r *OrderRepository) mutate(identifier string, fn func(*models.Order)) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.lookup(identifier)
	if !ok {
		return nil, orders.ErrNotFound
	}
	fn(o)
	updated := clone(*o)
	return &updated, nil
}

func (r *OrderRepository) Stats(ctx context.Context) (orders.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.OrderStatus]*orders.StatusStats)
	stats := orders.Stats{TotalRevenue: decimal.Zero, PaidRevenue: decimal.Zero}
	for _, o := range r.orders {
		if o.IsArchived {
			continue
		}
		entry, ok := counts[o.Status]
		if !ok {
			entry = &orders.StatusStats{Status: o.Status, Revenue: decimal.Zero}
			counts[o.Status] = entry
		}
		entry.Count++
		entry.Revenue = entry.Revenue.Add(o.Pricing.TotalPrice)

		stats.TotalOrders++
		if o.Status != models.StatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.Pricing.TotalPrice)
		}
		if o.Payment.Status == models.PaymentCompleted {
			stats.PaidOrders++
			stats.PaidRevenue = stats.PaidRevenue.Add(o.Pricing.TotalPrice)
		}
	}

	stats.ByStatus = []orders.StatusStats{}
	for _, status := range models.OrderStatuses {
		if entry, ok := counts[status]; ok {
			stats.ByStatus = append(stats.ByStatus, *entry)
		}
	}
	return stats, nil
}

func (r *OrderRepository) RecordPaymentCallback(ctx context.Context, key, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.callbacks[key]; seen {
		return false, nil
	}
	r.callbacks[key] = orderID
	return true, nil
}

func (r *OrderRepository) ReleasePaymentCallback(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.callbacks, key)
	return nil
}

func clone(o models.Order) models.Order {
	if shop, ok := o.Details.(models.ShopDetails); ok {
		o.Details = models.ShopDetails{Items: append([]models.ShopItem(nil), shop.Items...)}
	}
	if o.Files != nil {
		o.Files = append([]models.FileRef(nil), o.Files...)
	}
	if o.Payment.PaidAt != nil {
		paidAt := *o.Payment.PaidAt
		o.Payment.PaidAt = &paidAt
	}
	if o.Delivery != nil {
		delivery := *o.Delivery
		o.Delivery = &delivery
	}
	if o.DeliveryDate != nil {
		date := *o.DeliveryDate
		o.DeliveryDate = &date
	}
	return o
}
