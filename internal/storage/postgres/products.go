package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, category, price, discount_price, stock,
	is_active, is_featured, is_popular, rating, review_count, created_at, updated_at`

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) ListProducts(ctx context.Context, filter orders.ProductFilter) ([]models.Product, error) {
	conditions := []string{"is_active"}
	var args []interface{}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.FeaturedOnly {
		conditions = append(conditions, "is_featured")
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrProductNotFound
	}
	return p, err
}

func scanProduct(row scanner) (*models.Product, error) {
	var (
		p        models.Product
		discount decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &discount, &p.Stock,
		&p.IsActive, &p.IsFeatured, &p.IsPopular, &p.Rating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if discount.Valid {
		p.DiscountPrice = &discount.Decimal
	}
	return &p, nil
}

func (r *ProductRepository) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.Name, p.Description, p.Category, p.Price, nullDecimal(p.DiscountPrice), p.Stock,
		p.IsActive, p.IsFeatured, p.IsPopular, p.Rating, p.ReviewCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, p *models.Product) error {
	err := r.db.QueryRowContext(ctx, `UPDATE products SET name = $2, description = $3, category = $4,
		price = $5, discount_price = $6, stock = $7, is_active = $8, is_featured = $9, is_popular = $10,
		updated_at = $11 WHERE id = $1 RETURNING created_at, rating, review_count`,
		p.ID, p.Name, p.Description, p.Category, p.Price, nullDecimal(p.DiscountPrice), p.Stock,
		p.IsActive, p.IsFeatured, p.IsPopular, p.UpdatedAt,
	).Scan(&p.CreatedAt, &p.Rating, &p.ReviewCount)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (r *ProductRepository) DeactivateProduct(ctx context.Context, id string) (*models.Product, error) {
	return r.updateReturning(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 RETURNING `+productColumns, id)
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int) (*models.Product, error) {
	return r.updateReturning(ctx, `UPDATE products SET stock = $2, updated_at = NOW()
		WHERE id = $1 RETURNING `+productColumns, id, stock)
}

func (r *ProductRepository) updateReturning(ctx context.Context, query string, args ...interface{}) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
