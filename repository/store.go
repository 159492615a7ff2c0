// Package repository implements storage.Store on Postgres.
package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"pricewatch/database"
	"pricewatch/storage"
)

// PostgresStore combines the item and settings repositories.
type PostgresStore struct {
	*ItemRepository
	*SettingsRepository
	db *sql.DB
}

var _ storage.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		ItemRepository:     NewItemRepository(db),
		SettingsRepository: NewSettingsRepository(db),
		db:                 db,
	}
}

// Opener returns a storage.Opener that connects, creates the schema and
// wraps the connection.
func Opener(log *zap.Logger) storage.Opener {
	return func(databaseURL string) (storage.Store, error) {
		db, err := database.Open(databaseURL, log)
		if err != nil {
			return nil, err
		}
		if err := database.CreateTables(context.Background(), db); err != nil {
			db.Close()
			return nil, err
		}
		return NewPostgresStore(db), nil
	}
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
