package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pricewatch/models"
	"pricewatch/storage"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// ListDomainSettings returns all settings ordered by domain
func (r *SettingsRepository) ListDomainSettings(ctx context.Context) ([]models.DomainSetting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT domain, selector, scraper, price_selectors
		FROM domain_settings
		ORDER BY domain
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domain settings: %w", err)
	}
	defer rows.Close()

	var out []models.DomainSetting
	for rows.Next() {
		var (
			s         models.DomainSetting
			scraper   string
			selectors pq.StringArray
		)
		if err := rows.Scan(&s.Domain, &s.Selector, &scraper, &selectors); err != nil {
			return nil, fmt.Errorf("failed to scan domain setting: %w", err)
		}
		s.Scraper = models.ScraperMode(scraper)
		if len(selectors) > 0 {
			s.PriceSelectors = []string(selectors)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list domain settings: %w", err)
	}
	return out, nil
}

const upsertSetting = `
	INSERT INTO domain_settings (domain, selector, scraper, price_selectors, updated_at)
	VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
	ON CONFLICT (domain) DO UPDATE SET
		selector = EXCLUDED.selector, scraper = EXCLUDED.scraper,
		price_selectors = EXCLUDED.price_selectors, updated_at = CURRENT_TIMESTAMP
`

// SaveDomainSetting upserts one setting
func (r *SettingsRepository) SaveDomainSetting(ctx context.Context, s models.DomainSetting) error {
	if _, err := r.db.ExecContext(ctx, upsertSetting, settingArgs(s)...); err != nil {
		return fmt.Errorf("failed to save domain setting %s: %w", s.Domain, err)
	}
	return nil
}

// ReplaceDomainSettings swaps the whole table in one transaction
func (r *SettingsRepository) ReplaceDomainSettings(ctx context.Context, settings []models.DomainSetting) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM domain_settings`); err != nil {
		return fmt.Errorf("failed to clear domain settings: %w", err)
	}
	for _, s := range settings {
		if _, err := tx.ExecContext(ctx, upsertSetting, settingArgs(s)...); err != nil {
			return fmt.Errorf("failed to save domain setting %s: %w", s.Domain, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit domain settings: %w", err)
	}
	return nil
}

// DeleteDomainSetting removes the setting for domain
func (r *SettingsRepository) DeleteDomainSetting(ctx context.Context, domain string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM domain_settings WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("failed to delete domain setting: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func settingArgs(s models.DomainSetting) []any {
	mode := s.Scraper
	if mode == "" {
		mode = models.ScraperAuto
	}
	selectors := s.PriceSelectors
	if selectors == nil {
		selectors = []string{}
	}
	return []any{s.Domain, s.Selector, string(mode), pq.Array(selectors)}
}
