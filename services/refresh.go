package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/models"
	"pricewatch/scraper"
)

// RefreshItem fetches every site of one item, one at a time, and folds the
// accepted prices into the item.
func (t *Tracker) RefreshItem(ctx context.Context, id string) (models.Item, models.RefreshSummary, error) {
	summary := models.RefreshSummary{StartedAt: t.now()}

	settings, err := t.store.ListDomainSettings(ctx)
	if err != nil {
		return models.Item{}, summary, fmt.Errorf("list domain settings: %w", err)
	}
	it, err := t.refreshItem(ctx, id, settings, &summary)
	summary.Duration = time.Since(summary.StartedAt).Round(time.Millisecond).String()
	return it, summary, err
}

// RefreshAll refreshes every item sequentially. A failing item is logged and
// counted; it never stops the run.
func (t *Tracker) RefreshAll(ctx context.Context) (models.RefreshSummary, error) {
	summary := models.RefreshSummary{StartedAt: t.now()}

	items, err := t.ListItems(ctx)
	if err != nil {
		return summary, err
	}
	settings, err := t.store.ListDomainSettings(ctx)
	if err != nil {
		return summary, fmt.Errorf("list domain settings: %w", err)
	}

	t.log.Info("refresh all started", zap.Int("items", len(items)))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := t.refreshItem(ctx, it.ID, settings, &summary); err != nil {
			if errors.Is(err, ErrItemNotFound) {
				continue
			}
			t.log.Warn("item refresh failed", zap.String("item_id", it.ID), zap.Error(err))
		}
	}

	summary.Duration = time.Since(summary.StartedAt).Round(time.Millisecond).String()
	t.log.Info("refresh all finished",
		zap.Int("items", summary.Items),
		zap.Int("sites", summary.Sites),
		zap.Int("updated", summary.Updated),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
		zap.String("duration", summary.Duration))
	return summary, nil
}

func (t *Tracker) refreshItem(ctx context.Context, id string, settings []models.DomainSetting, summary *models.RefreshSummary) (models.Item, error) {
	it, err := t.GetItem(ctx, id)
	if err != nil {
		return models.Item{}, err
	}
	log := t.log.With(zap.String("item_id", id))
	log.Info("refreshing item", zap.Int("sites", len(it.Sites)))
	summary.Items++

	for _, site := range it.Sites {
		if err := ctx.Err(); err != nil {
			return models.Item{}, err
		}
		req := EffectiveRequest(site, settings)
		res := t.fetcher.FetchPrice(ctx, req)
		summary.Sites++

		if err := t.applyResult(ctx, id, site.ID, res, summary); err != nil {
			log.Warn("could not record site result", zap.String("site_id", site.ID), zap.Error(err))
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	it, err = t.GetItem(ctx, id)
	if err != nil {
		return models.Item{}, err
	}
	if !it.RecomputeAggregates(t.now()) {
		log.Info("no valid prices for item")
		return it, nil
	}
	if err := t.store.SaveItem(ctx, it); err != nil {
		return models.Item{}, fmt.Errorf("save item: %w", err)
	}
	log.Info("item refreshed", zap.Float64("best_price", *it.CurrentPrice), zap.String("best_url", *it.BestURL))
	return it, nil
}

// applyResult records one site outcome against the latest stored copy of the
// item, so edits made while the page was loading are kept.
func (t *Tracker) applyResult(ctx context.Context, itemID, siteID string, res models.ExtractionResult, summary *models.RefreshSummary) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, err := t.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	idx := it.FindSite(siteID)
	if idx < 0 {
		return ErrSiteNotFound
	}
	site := &it.Sites[idx]

	checked, plausible := t.guard.Check(res, site.CurrentPrice)
	summary.Count(checked.ErrorKind)
	log := t.log.With(zap.String("item_id", itemID), zap.String("url", site.URL))

	switch {
	case !plausible:
		summary.Rejected++
		t.metrics.IncPlausibilityRejected()
		log.Warn("price rejected", zap.Float64("price", res.Value()), zap.String("reason", checked.Message))
		return nil
	case !checked.Accepted():
		summary.Failed++
		log.Info("no price for site", zap.String("error_kind", string(checked.ErrorKind)), zap.String("message", checked.Message))
		return nil
	}

	price := *checked.Price
	reason := site.PriceChangeReason(price)
	site.RecordPrice(price, t.now())
	summary.Updated++
	log.Info("site price updated", zap.Float64("price", price), zap.String("change", reason))

	if err := t.store.SaveItem(ctx, it); err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	return nil
}

// EffectiveRequest resolves the fetch settings of a site: its own selector and
// scraper first, then the matching domain setting, then auto. The visible-DOM
// scan runs only for configured domains.
func EffectiveRequest(site models.Site, settings []models.DomainSetting) scraper.Request {
	ds, matched := config.ResolveDomain(settings, site.Domain())

	req := scraper.Request{
		URL:         site.URL,
		Selector:    site.Selector,
		Mode:        site.Scraper,
		VisibleScan: matched,
	}
	if req.Selector == "" {
		req.Selector = ds.Selector
	}
	if req.Mode == "" {
		req.Mode = ds.Scraper
	}
	if req.Mode == "" {
		req.Mode = models.ScraperAuto
	}
	if matched {
		req.PriceSelectors = append([]string(nil), ds.PriceSelectors...)
	}
	return req
}

// Probe runs a single extraction with the same settings resolution as a refresh.
func (t *Tracker) Probe(ctx context.Context, in ProbeInput) (models.ExtractionResult, error) {
	site := models.Site{URL: strings.TrimSpace(in.URL), Selector: strings.TrimSpace(in.Selector)}
	if site.URL == "" || site.Domain() == "" {
		return models.ExtractionResult{}, fmt.Errorf("%w: a valid url is required", ErrInvalidInput)
	}
	if in.Mode != "" {
		mode, err := models.ParseScraperMode(string(in.Mode))
		if err != nil {
			return models.ExtractionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		site.Scraper = mode
	}

	settings, err := t.store.ListDomainSettings(ctx)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("list domain settings: %w", err)
	}
	return t.fetcher.FetchPrice(ctx, EffectiveRequest(site, settings)), nil
}
