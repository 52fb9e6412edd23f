package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnNames = []string{
	"id", "order_number", "customer", "service", "details", "files",
	"base_price", "discount", "discount_percent", "total_price", "currency",
	"payment_method", "payment_status", "transaction_id", "paid_at",
	"status", "delivery", "delivery_date", "notes", "internal_notes",
	"views", "is_archived", "created_at", "updated_at",
}

const testOrderID = "6f1c2a9e-8d4b-4c1e-9a57-0b6f3c2d1e0a"

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func orderRow(views int, archived bool) []driver.Value {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []driver.Value{
		testOrderID, "PJ-01HX3K4M5N-6P7Q8R9S",
		[]byte(`{"name":"Olena","email":"olena@example.com","phone":"+380501112233"}`),
		"cutting", []byte(`{"material":"plywood3","length":600,"detailCount":10}`), []byte(`[]`),
		"8951.00", "1342.65", "15.00", "7608.35", "UAH",
		"card", "pending", "", nil,
		"new", nil, nil, "", "",
		views, archived, created, created,
	}
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "idx_orders_order_number"})

	order := &models.Order{
		ID:          testOrderID,
		OrderNumber: "PJ-X",
		Customer:    models.Customer{Email: "A@B.com", Phone: "+38 050"},
		Details:     models.DesignDetails{},
	}
	err := repo.Create(context.Background(), order)
	assert.ErrorIs(t, err, orders.ErrDuplicateOrderNumber)
}

func TestCreateStoresNormalisedContactColumns(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(testOrderID, "PJ-X", sqlmock.AnyArg(), "a@b.com", "38050",
			"design", []byte(`{}`), []byte(`[]`),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "UAH",
			"", "pending", "", sqlmock.AnyArg(),
			"new", "", 0, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	order := &models.Order{
		ID:          testOrderID,
		OrderNumber: "PJ-X",
		Customer:    models.Customer{Email: "A@B.com", Phone: "+38 050"},
		Details:     models.DesignDetails{},
		Pricing:     models.Pricing{TotalPrice: decimal.NewFromInt(500), Currency: "UAH"},
		Payment:     models.Payment{Status: models.PaymentPending},
		Status:      models.StatusNew,
	}
	require.NoError(t, repo.Create(context.Background(), order))
}

func TestFindByIdentifierUsesOrderNumberColumn(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_number = $1")).
		WithArgs("PJ-01HX3K4M5N-6P7Q8R9S").
		WillReturnRows(sqlmock.NewRows(columnNames).AddRow(orderRow(3, false)...))

	order, err := repo.FindByIdentifier(context.Background(), "PJ-01HX3K4M5N-6P7Q8R9S")
	require.NoError(t, err)
	assert.Equal(t, testOrderID, order.ID)
	assert.Equal(t, "Olena", order.Customer.Name)
	assert.Equal(t, models.StatusNew, order.Status)
	assert.Equal(t, 3, order.Views)
	assert.Nil(t, order.Payment.PaidAt)
	assert.Nil(t, order.Delivery)

	cutting, ok := order.Details.(models.CuttingDetails)
	require.True(t, ok)
	assert.Equal(t, "plywood3", cutting.Material)
	assert.Equal(t, 10, cutting.DetailCount)
	assert.Equal(t, "7608.35", order.Pricing.TotalPrice.StringFixed(2))
}

func TestFindByIdentifierNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs(testOrderID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByIdentifier(context.Background(), testOrderID)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestIncrementViewsReturnsRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET views = views + 1 WHERE id = $1 RETURNING")).
		WithArgs(testOrderID).
		WillReturnRows(sqlmock.NewRows(columnNames).AddRow(orderRow(4, false)...))

	order, err := repo.IncrementViews(context.Background(), testOrderID)
	require.NoError(t, err)
	assert.Equal(t, 4, order.Views)
}

func TestUpdateAppliesPatchInTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1 FOR UPDATE")).
		WithArgs(testOrderID).
		WillReturnRows(sqlmock.NewRows(columnNames).AddRow(orderRow(0, false)...))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $2")).
		WithArgs(testOrderID, "accepted", "", "", "card", "pending", "", sqlmock.AnyArg(), nil, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	accepted := models.StatusAccepted
	order, err := repo.Update(context.Background(), testOrderID, orders.Patch{Status: &accepted})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, order.Status)
	assert.Equal(t, now, order.UpdatedAt)
}

func TestUpdateMissingOrderRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	notes := "x"
	_, err := repo.Update(context.Background(), "PJ-NOPE", orders.Patch{Notes: &notes})
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestRecordPaymentCallback(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_callbacks")).
		WithArgs("fondy:1:success", testOrderID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_callbacks")).
		WithArgs("fondy:1:success", testOrderID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payment_callbacks WHERE key = $1")).
		WithArgs("fondy:1:success").
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := repo.RecordPaymentCallback(context.Background(), "fondy:1:success", testOrderID)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = repo.RecordPaymentCallback(context.Background(), "fondy:1:success", testOrderID)
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, repo.ReleasePaymentCallback(context.Background(), "fondy:1:success"))
}

func TestListBuildsFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders WHERE NOT is_archived AND status = $1")).
		WithArgs("new").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $2 OFFSET $3")).
		WithArgs("new", 20, 20).
		WillReturnRows(sqlmock.NewRows(columnNames).AddRow(orderRow(0, false)...))

	list, total, err := repo.List(context.Background(), orders.ListFilter{Page: 2, Limit: 20, Status: models.StatusNew})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	assert.Len(t, list, 1)
}

func TestStats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "sum"}).
			AddRow("cancelled", 1, "200.00").
			AddRow("new", 2, "1000.00"))
	mock.ExpectQuery(regexp.QuoteMeta("payment_status = $1")).
		WithArgs("completed").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(1, "500.00"))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalOrders)
	assert.Equal(t, "1000.00", stats.TotalRevenue.StringFixed(2))
	assert.Equal(t, 1, stats.PaidOrders)
	require.Len(t, stats.ByStatus, 2)
	assert.Equal(t, models.StatusNew, stats.ByStatus[0].Status)
}

func TestGetProductNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProductRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1")).
		WithArgs("p1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProduct(context.Background(), "p1")
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
}
