package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/models"
	"pricewatch/storage"
)

// ListDomainSettings returns the stored domain settings
func (t *Tracker) ListDomainSettings(ctx context.Context) ([]models.DomainSetting, error) {
	settings, err := t.store.ListDomainSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domain settings: %w", err)
	}
	if settings == nil {
		settings = []models.DomainSetting{}
	}
	return settings, nil
}

// ReplaceDomainSettings swaps the whole list. Entries without a domain are
// dropped; a later entry for the same domain wins.
func (t *Tracker) ReplaceDomainSettings(ctx context.Context, in []models.DomainSetting) ([]models.DomainSetting, error) {
	var clean []models.DomainSetting
	index := make(map[string]int)
	for _, s := range in {
		if strings.TrimSpace(s.Domain) == "" {
			continue
		}
		c, err := config.SanitizeDomainSetting(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if i, ok := index[c.Domain]; ok {
			clean[i] = c
			continue
		}
		index[c.Domain] = len(clean)
		clean = append(clean, c)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.ReplaceDomainSettings(ctx, clean); err != nil {
		return nil, fmt.Errorf("replace domain settings: %w", err)
	}
	t.log.Info("domain settings replaced", zap.Int("count", len(clean)))
	return t.ListDomainSettings(ctx)
}

// UpsertDomainSetting saves one entry. A missing scraper keeps the previous
// value, or auto for a new domain; missing price selectors are kept as well.
func (t *Tracker) UpsertDomainSetting(ctx context.Context, in models.DomainSetting) ([]models.DomainSetting, error) {
	if strings.TrimSpace(in.Domain) == "" {
		return nil, fmt.Errorf("%w: domain required", ErrInvalidInput)
	}
	keepMode := strings.TrimSpace(string(in.Scraper)) == ""
	keepSelectors := in.PriceSelectors == nil

	s, err := config.SanitizeDomainSetting(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current, err := t.store.ListDomainSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domain settings: %w", err)
	}
	for _, prev := range current {
		if prev.Domain != s.Domain {
			continue
		}
		if keepMode && prev.Scraper != "" {
			s.Scraper = prev.Scraper
		}
		if keepSelectors {
			s.PriceSelectors = prev.PriceSelectors
		}
	}

	if err := t.store.SaveDomainSetting(ctx, s); err != nil {
		return nil, fmt.Errorf("save domain setting: %w", err)
	}
	t.log.Info("domain setting saved", zap.String("domain", s.Domain), zap.String("scraper", string(s.Scraper)))
	return t.ListDomainSettings(ctx)
}

// DeleteDomainSetting removes a domain; deleting an unknown domain is not an error.
func (t *Tracker) DeleteDomainSetting(ctx context.Context, domain string) ([]models.DomainSetting, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	domain = config.NormalizeDomain(domain)
	if err := t.store.DeleteDomainSetting(ctx, domain); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("delete domain setting: %w", err)
	}
	return t.ListDomainSettings(ctx)
}

// SeedDomainSettings stores seed only when no settings exist yet. It reports
// whether anything was written.
func (t *Tracker) SeedDomainSettings(ctx context.Context, seed []models.DomainSetting) (bool, error) {
	if len(seed) == 0 {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current, err := t.store.ListDomainSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("list domain settings: %w", err)
	}
	if len(current) > 0 {
		return false, nil
	}
	if err := t.store.ReplaceDomainSettings(ctx, seed); err != nil {
		return false, fmt.Errorf("seed domain settings: %w", err)
	}
	t.log.Info("domain settings seeded", zap.Int("count", len(seed)))
	return true, nil
}
