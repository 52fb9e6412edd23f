package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const orderColumns = `id, order_number, customer, service, details, files,
	base_price, discount, discount_percent, total_price, currency,
	payment_method, payment_status, transaction_id, paid_at,
	status, delivery, delivery_date, notes, internal_notes,
	views, is_archived, created_at, updated_at`

type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return err
	}
	details, err := json.Marshal(order.Details)
	if err != nil {
		return err
	}
	files, err := json.Marshal(nonNilFiles(order.Files))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (id, order_number, customer, customer_email, customer_phone_digits,
			service, details, files, base_price, discount, discount_percent, total_price, currency,
			payment_method, payment_status, transaction_id, paid_at, status, notes,
			views, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err = r.db.ExecContext(ctx, query,
		order.ID, order.OrderNumber, customer, strings.ToLower(order.Customer.Email), orders.OnlyDigits(order.Customer.Phone),
		string(order.Service()), details, files,
		order.Pricing.BasePrice, order.Pricing.Discount, order.Pricing.DiscountPercent, order.Pricing.TotalPrice, order.Pricing.Currency,
		string(order.Payment.Method), string(order.Payment.Status), order.Payment.TransactionID, nullTime(order.Payment.PaidAt),
		string(order.Status), order.Notes, order.Views, order.IsArchived, order.CreatedAt, order.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return orders.ErrDuplicateOrderNumber
	}
	return err
}

// identifierClause picks the column to match: surrogate ids are UUIDs,
// anything else is treated as an order number.
func identifierClause(identifier string) string {
	if _, err := uuid.Parse(identifier); err == nil {
		return "id = $1"
	}
	return "order_number = $1"
}

func (r *OrderRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + identifierClause(identifier)
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	return order, err
}

func (r *OrderRepository) FindByEmail(ctx context.Context, email string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_email = $1 AND NOT is_archived
		ORDER BY created_at DESC`
	return r.query(ctx, query, strings.ToLower(email))
}

func (r *OrderRepository) FindByPhone(ctx context.Context, digits string, limit int) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_phone_digits LIKE '%' || $1 || '%' AND NOT is_archived
		ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, query, digits, limit)
}

func (r *OrderRepository) List(ctx context.Context, filter orders.ListFilter) ([]models.Order, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if !filter.IncludeArchived {
		conditions = append(conditions, "NOT is_archived")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Service != "" {
		args = append(args, string(filter.Service))
		conditions = append(conditions, fmt.Sprintf("service = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	list, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Update locks the row, applies the patch in Go and writes back the mutable
// columns in one transaction.
func (r *OrderRepository) Update(ctx context.Context, identifier string, patch orders.Patch) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + identifierClause(identifier) + ` FOR UPDATE`
	order, err := scanOrder(tx.QueryRowContext(ctx, query, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(order, r.now())

	var delivery interface{}
	if order.Delivery != nil {
		raw, err := json.Marshal(order.Delivery)
		if err != nil {
			return nil, err
		}
		delivery = raw
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, notes = $3, internal_notes = $4,
			payment_method = $5, payment_status = $6, transaction_id = $7, paid_at = $8,
			delivery = $9, delivery_date = $10, updated_at = $11
		WHERE id = $1`,
		order.ID, string(order.Status), order.Notes, order.InternalNotes,
		string(order.Payment.Method), string(order.Payment.Status), order.Payment.TransactionID, nullTime(order.Payment.PaidAt),
		delivery, nullTime(order.DeliveryDate), order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) IncrementViews(ctx context.Context, identifier string) (*models.Order, error) {
	query := `UPDATE orders SET views = views + 1 WHERE ` + identifierClause(identifier) + ` RETURNING ` + orderColumns
	return r.returning(ctx, query, identifier)
}

func (r *OrderRepository) Archive(ctx context.Context, identifier string) (*models.Order, error) {
	query := `UPDATE orders SET
			updated_at = CASE WHEN is_archived THEN updated_at ELSE $2 END,
			is_archived = TRUE
		WHERE ` + identifierClause(identifier) + ` RETURNING ` + orderColumns
	return r.returning(ctx, query, identifier, r.now())
}

func (r *OrderRepository) returning(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	return order, err
}

func (r *OrderRepository) Stats(ctx context.Context) (orders.Stats, error) {
	stats := orders.Stats{ByStatus: []orders.StatusStats{}, TotalRevenue: decimal.Zero}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM orders WHERE NOT is_archived
		GROUP BY status`)
	if err != nil {
		return orders.Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry  orders.StatusStats
			status string
		)
		if err := rows.Scan(&status, &entry.Count, &entry.Revenue); err != nil {
			return orders.Stats{}, err
		}
		entry.Status = models.OrderStatus(status)
		stats.ByStatus = append(stats.ByStatus, entry)
		stats.TotalOrders += entry.Count
		if entry.Status != models.StatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(entry.Revenue)
		}
	}
	if err := rows.Err(); err != nil {
		return orders.Stats{}, err
	}
	sort.SliceStable(stats.ByStatus, func(i, j int) bool {
		return statusRank(stats.ByStatus[i].Status) < statusRank(stats.ByStatus[j].Status)
	})

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_price), 0)
		FROM orders WHERE NOT is_archived AND payment_status = $1`,
		string(models.PaymentCompleted),
	).Scan(&stats.PaidOrders, &stats.PaidRevenue)
	if err != nil {
		return orders.Stats{}, err
	}
	return stats, nil
}

func (r *OrderRepository) RecordPaymentCallback(ctx context.Context, key, orderID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_callbacks (key, order_id, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING`,
		key, orderID, r.now(),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *OrderRepository) ReleasePaymentCallback(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payment_callbacks WHERE key = $1`, key)
	return err
}

func (r *OrderRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *order)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var (
		order                                  models.Order
		customer, details, files, delivery     []byte
		service, method, paymentStatus, status string
		paidAt, deliveryDate                   sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &customer, &service, &details, &files,
		&order.Pricing.BasePrice, &order.Pricing.Discount, &order.Pricing.DiscountPercent, &order.Pricing.TotalPrice, &order.Pricing.Currency,
		&method, &paymentStatus, &order.Payment.TransactionID, &paidAt,
		&status, &delivery, &deliveryDate, &order.Notes, &order.InternalNotes,
		&order.Views, &order.IsArchived, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customer, &order.Customer); err != nil {
		return nil, fmt.Errorf("decode customer of %s: %w", order.ID, err)
	}
	if order.Details, err = models.DecodeDetails(models.ServiceType(service), details); err != nil {
		return nil, err
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &order.Files); err != nil {
			return nil, fmt.Errorf("decode files of %s: %w", order.ID, err)
		}
	}
	if len(delivery) > 0 {
		order.Delivery = &models.Delivery{}
		if err := json.Unmarshal(delivery, order.Delivery); err != nil {
			return nil, fmt.Errorf("decode delivery of %s: %w", order.ID, err)
		}
	}

	order.Payment.Method = models.PaymentMethod(method)
	order.Payment.Status = models.PaymentStatus(paymentStatus)
	order.Status = models.OrderStatus(status)
	if paidAt.Valid {
		order.Payment.PaidAt = &paidAt.Time
	}
	if deliveryDate.Valid {
		order.DeliveryDate = &deliveryDate.Time
	}
	return &order, nil
}

func statusRank(status models.OrderStatus) int {
	for i, s := range models.OrderStatuses {
		if s == status {
			return i
		}
	}
	return len(models.OrderStatuses)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNilFiles(files []models.FileRef) []models.FileRef {
	if files == nil {
		return []models.FileRef{}
	}
	return files
}
