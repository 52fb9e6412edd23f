// Package postgres stores orders, products and payment callback keys in
// PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Open connects and waits for the database to accept connections.
func Open(ctx context.Context, dsn string, attempts int, logger *logrus.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Info("Database connection established")
			return db, nil
		}
		logger.WithField("attempt", i+1).Info("Waiting for database...")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	db.Close()
	return nil, fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		order_number VARCHAR(32) NOT NULL,
		customer JSONB NOT NULL,
		customer_email VARCHAR(255) NOT NULL,
		customer_phone_digits VARCHAR(32) NOT NULL,
		service VARCHAR(32) NOT NULL,
		details JSONB NOT NULL,
		files JSONB NOT NULL DEFAULT '[]',
		base_price NUMERIC(12,2) NOT NULL,
		discount NUMERIC(12,2) NOT NULL DEFAULT 0,
		discount_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
		total_price NUMERIC(12,2) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		payment_method VARCHAR(32) NOT NULL DEFAULT '',
		payment_status VARCHAR(32) NOT NULL,
		transaction_id VARCHAR(255) NOT NULL DEFAULT '',
		paid_at TIMESTAMPTZ,
		status VARCHAR(32) NOT NULL,
		delivery JSONB,
		delivery_date TIMESTAMPTZ,
		notes TEXT NOT NULL DEFAULT '',
		internal_notes TEXT NOT NULL DEFAULT '',
		views INTEGER NOT NULL DEFAULT 0,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number ON orders(order_number)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_email ON orders(customer_email)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_phone ON orders(customer_phone_digits)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE TABLE IF NOT EXISTS payment_callbacks (
		key VARCHAR(255) PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id),
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category VARCHAR(64) NOT NULL,
		price NUMERIC(12,2) NOT NULL,
		discount_price NUMERIC(12,2),
		stock INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_featured BOOLEAN NOT NULL DEFAULT FALSE,
		is_popular BOOLEAN NOT NULL DEFAULT FALSE,
		rating NUMERIC(3,2) NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, query := range schema {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
