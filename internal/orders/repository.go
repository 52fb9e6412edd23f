package orders

import (
	"context"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageLimit  = 50
	AdminPageLimit    = 20
	MaxPageLimit      = 100
	PhoneLookupLimit  = 10
	maxCreateAttempts = 5
)

// Repository is the storage contract for orders. Identifiers accepted by the
// lookup and mutation methods may be either the surrogate id or the order
// number.
type Repository interface {
	// Create persists a fully populated order. It returns
	// ErrDuplicateOrderNumber when the order number is taken.
	Create(ctx context.Context, order *models.Order) error
	FindByIdentifier(ctx context.Context, identifier string) (*models.Order, error)
	// FindByEmail returns non-archived orders, newest first.
	FindByEmail(ctx context.Context, email string) ([]models.Order, error)
	// FindByPhone matches digits anywhere in the stored phone, newest first.
	FindByPhone(ctx context.Context, digits string, limit int) ([]models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, int, error)
	Update(ctx context.Context, identifier string, patch Patch) (*models.Order, error)
	IncrementViews(ctx context.Context, identifier string) (*models.Order, error)
	Archive(ctx context.Context, identifier string) (*models.Order, error)
	Stats(ctx context.Context) (Stats, error)
	// RecordPaymentCallback stores an idempotency key and reports whether it
	// was seen for the first time.
	RecordPaymentCallback(ctx context.Context, key, orderID string) (bool, error)
	ReleasePaymentCallback(ctx context.Context, key string) error
}

type ListFilter struct {
	Page            int
	Limit           int
	Status          models.OrderStatus
	Service         models.ServiceType
	IncludeArchived bool
}

// Offset is the number of rows to skip for the 1-indexed page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

func (f ListFilter) normalize(defaultLimit int) ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if defaultLimit < 1 {
		defaultLimit = DefaultPageLimit
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

type StatusStats struct {
	Status  models.OrderStatus `json:"status"`
	Count   int                `json:"count"`
	Revenue decimal.Decimal    `json:"totalRevenue"`
}

type Stats struct {
	ByStatus     []StatusStats   `json:"byStatus"`
	TotalOrders  int             `json:"totalOrders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	PaidOrders   int             `json:"paidOrders"`
	PaidRevenue  decimal.Decimal `json:"paidRevenue"`
}

// ProductRepository stores the shop catalogue. Removing a product only
// deactivates it so that past order lines keep pointing at a real row.
type ProductRepository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	// GetProduct returns ErrProductNotFound for unknown ids.
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	// UpdateProduct replaces every editable field and keeps CreatedAt.
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeactivateProduct(ctx context.Context, id string) (*models.Product, error)
	SetStock(ctx context.Context, id string, stock int) (*models.Product, error)
}

type ProductFilter struct {
	Category     string
	FeaturedOnly bool
}
