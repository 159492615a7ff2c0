package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"pricewatch/logger"
)

const pingTimeout = 10 * time.Second

// schema lists the statements CreateTables runs, in order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		current_price DOUBLE PRECISION,
		min_price DOUBLE PRECISION,
		max_price DOUBLE PRECISION,
		best_url TEXT,
		image_url TEXT,
		last_updated TIMESTAMPTZ,
		price_history DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
		history_dates TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		url TEXT NOT NULL,
		selector TEXT NOT NULL DEFAULT '',
		scraper VARCHAR(20) NOT NULL DEFAULT '',
		current_price DOUBLE PRECISION,
		last_updated TIMESTAMPTZ,
		history DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
		history_dates TIMESTAMPTZ[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS domain_settings (
		domain TEXT PRIMARY KEY,
		selector TEXT NOT NULL DEFAULT '',
		scraper VARCHAR(20) NOT NULL DEFAULT 'auto' CHECK (scraper IN ('auto', 'simple', 'puppeteer')),
		price_selectors TEXT[] NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sites_item ON sites (item_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_items_position ON items (position)`,
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, log *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.OrNop(log).Info("connected to database")
	return db, nil
}

// CreateTables creates the necessary tables if they don't exist
func CreateTables(ctx context.Context, db *sql.DB) error {
	for _, query := range schema {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
