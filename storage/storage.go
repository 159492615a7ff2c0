// Package storage persists tracked items and domain settings.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pricewatch/models"
)

// ErrNotFound is returned when an item or domain setting does not exist.
var ErrNotFound = errors.New("not found")

// Store holds items and domain settings. Items are always returned as deep copies.
type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, id string) (models.Item, error)
	SaveItem(ctx context.Context, item models.Item) error
	SaveItems(ctx context.Context, items []models.Item) error
	DeleteItem(ctx context.Context, id string) error

	ListDomainSettings(ctx context.Context) ([]models.DomainSetting, error)
	SaveDomainSetting(ctx context.Context, setting models.DomainSetting) error
	ReplaceDomainSettings(ctx context.Context, settings []models.DomainSetting) error
	DeleteDomainSetting(ctx context.Context, domain string) error

	Close() error
}

// Opener opens a SQL-backed store. It keeps this package free of driver imports.
type Opener func(databaseURL string) (Store, error)

// NewStore creates the configured storage backend.
func NewStore(typ, path, databaseURL string, postgres Opener) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "memory":
		return NewMemoryStore(), nil
	case "", "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	case "postgres":
		if postgres == nil {
			return nil, fmt.Errorf("postgres storage is not available")
		}
		return postgres(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// SortByPosition orders items by position, then by ID for stability.
func SortByPosition(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})
}

func sortSettings(settings []models.DomainSetting) {
	sort.Slice(settings, func(i, j int) bool {
		return settings[i].Domain < settings[j].Domain
	})
}
