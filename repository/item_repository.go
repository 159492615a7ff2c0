package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"pricewatch/models"
	"pricewatch/storage"
)

const itemColumns = `id, name, position, current_price, min_price, max_price, best_url, image_url, last_updated, price_history, history_dates`

const siteColumns = `id, item_id, url, selector, scraper, current_price, last_updated, history, history_dates`

// ItemRepository stores items and their sites in Postgres.
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// ListItems returns all items ordered by position
func (r *ItemRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	index := make(map[string]int)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	sites, err := r.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY item_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer sites.Close()

	for sites.Next() {
		itemID, site, err := scanSite(sites)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		if i, ok := index[itemID]; ok {
			items[i].Sites = append(items[i].Sites, site)
		}
	}
	if err := sites.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return items, nil
}

// GetItem returns one item with its sites
func (r *ItemRepository) GetItem(ctx context.Context, id string) (models.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Item{}, storage.ErrNotFound
		}
		return models.Item{}, fmt.Errorf("failed to get item: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE item_id = $1 ORDER BY seq`, id)
	if err != nil {
		return models.Item{}, fmt.Errorf("failed to get sites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		_, site, err := scanSite(rows)
		if err != nil {
			return models.Item{}, fmt.Errorf("failed to scan site: %w", err)
		}
		it.Sites = append(it.Sites, site)
	}
	if err := rows.Err(); err != nil {
		return models.Item{}, fmt.Errorf("failed to get sites: %w", err)
	}
	return it, nil
}

// SaveItem upserts an item and replaces its sites
func (r *ItemRepository) SaveItem(ctx context.Context, item models.Item) error {
	return r.SaveItems(ctx, []models.Item{item})
}

// SaveItems upserts several items in one transaction
func (r *ItemRepository) SaveItems(ctx context.Context, items []models.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		if err := saveItemTx(ctx, tx, it); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}
	return nil
}

func saveItemTx(ctx context.Context, tx *sql.Tx, it models.Item) error {
	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, position = EXCLUDED.position,
			current_price = EXCLUDED.current_price, min_price = EXCLUDED.min_price, max_price = EXCLUDED.max_price,
			best_url = EXCLUDED.best_url, image_url = EXCLUDED.image_url, last_updated = EXCLUDED.last_updated,
			price_history = EXCLUDED.price_history, history_dates = EXCLUDED.history_dates
	`
	_, err := tx.ExecContext(ctx, query,
		it.ID, it.Name, it.Position,
		it.CurrentPrice, it.MinPrice, it.MaxPrice,
		it.BestURL, it.ImageURL, it.LastUpdated,
		pq.Array(nonNil(it.PriceHistory)), pq.Array(formatDates(it.HistoryDates)),
	)
	if err != nil {
		return fmt.Errorf("failed to save item %s: %w", it.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE item_id = $1`, it.ID); err != nil {
		return fmt.Errorf("failed to clear sites of item %s: %w", it.ID, err)
	}

	for seq, s := range it.Sites {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sites (seq, `+siteColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			seq, s.ID, it.ID, s.URL, s.Selector, string(s.Scraper),
			s.CurrentPrice, s.LastUpdated,
			pq.Array(nonNil(s.History)), pq.Array(formatDates(s.HistoryDates)),
		)
		if err != nil {
			return fmt.Errorf("failed to save site %s: %w", s.ID, err)
		}
	}
	return nil
}

// DeleteItem deletes an item; its sites cascade
func (r *ItemRepository) DeleteItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		it                models.Item
		cur, lo, hi       sql.NullFloat64
		bestURL, imageURL sql.NullString
		lastUpdated       sql.NullTime
		history           pq.Float64Array
		dates             pq.StringArray
	)
	err := row.Scan(&it.ID, &it.Name, &it.Position, &cur, &lo, &hi, &bestURL, &imageURL, &lastUpdated, &history, &dates)
	if err != nil {
		return models.Item{}, err
	}

	it.CurrentPrice = nullFloat(cur)
	it.MinPrice = nullFloat(lo)
	it.MaxPrice = nullFloat(hi)
	it.BestURL = nullString(bestURL)
	it.ImageURL = nullString(imageURL)
	it.LastUpdated = nullTime(lastUpdated)
	it.PriceHistory = []float64(history)
	if it.HistoryDates, err = parseDates(dates); err != nil {
		return models.Item{}, err
	}
	return it, nil
}

func scanSite(row rowScanner) (string, models.Site, error) {
	var (
		s           models.Site
		itemID      string
		scraper     string
		cur         sql.NullFloat64
		lastUpdated sql.NullTime
		history     pq.Float64Array
		dates       pq.StringArray
	)
	err := row.Scan(&s.ID, &itemID, &s.URL, &s.Selector, &scraper, &cur, &lastUpdated, &history, &dates)
	if err != nil {
		return "", models.Site{}, err
	}

	s.Scraper = models.ScraperMode(scraper)
	s.CurrentPrice = nullFloat(cur)
	s.LastUpdated = nullTime(lastUpdated)
	s.History = []float64(history)
	if s.HistoryDates, err = parseDates(dates); err != nil {
		return "", models.Site{}, err
	}
	return itemID, s, nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// parseDates reads timestamptz[] elements, which Postgres renders in its own text format.
func parseDates(raw []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			t, err = pq.ParseTimestamp(time.UTC, s)
			if err != nil {
				return nil, fmt.Errorf("parse history date %q: %w", s, err)
			}
		}
		out = append(out, t.UTC())
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
