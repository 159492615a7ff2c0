// Package services holds the price tracker: item and site management, domain
// settings and the sequential refresh loop.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/models"
	"pricewatch/scraper"
	"pricewatch/storage"
)

const unnamedProduct = "Unnamed Product"

var (
	ErrItemNotFound = errors.New("item not found")
	ErrSiteNotFound = errors.New("site not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Fetcher extracts prices and titles. *scraper.PriceScraper implements it.
type Fetcher interface {
	FetchPrice(ctx context.Context, req scraper.Request) models.ExtractionResult
	FetchTitle(ctx context.Context, rawURL string) string
}

// Tracker manages tracked items. Mutations are serialized; fetches run outside
// the lock so a slow page never blocks the API.
type Tracker struct {
	store   storage.Store
	fetcher Fetcher
	guard   PlausibilityGuard
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

func NewTracker(store storage.Store, fetcher Fetcher, guard PlausibilityGuard, log *zap.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		store:   store,
		fetcher: fetcher,
		guard:   guard,
		metrics: m,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// ListItems returns items sorted by position
func (t *Tracker) ListItems(ctx context.Context) ([]models.Item, error) {
	items, err := t.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if items == nil {
		items = []models.Item{}
	}
	storage.SortByPosition(items)
	return items, nil
}

// GetItem returns one item
func (t *Tracker) GetItem(ctx context.Context, id string) (models.Item, error) {
	it, err := t.store.GetItem(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Item{}, ErrItemNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// CreateItem adds an item at the end of the list. Without a name, the title of
// the first URL is fetched.
func (t *Tracker) CreateItem(ctx context.Context, in CreateItemInput) (models.Item, error) {
	name := strings.TrimSpace(in.Name)
	var sites []models.Site
	for _, u := range in.URLs {
		u = u.clean()
		if u.URL == "" {
			continue
		}
		sites = append(sites, newSite(u))
	}

	if name == "" && len(sites) > 0 {
		name = strings.TrimSpace(t.fetcher.FetchTitle(ctx, sites[0].URL))
		t.log.Info("fetched title for new item", zap.String("url", sites[0].URL), zap.String("title", name))
	}
	if name == "" {
		name = unnamedProduct
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	items, err := t.store.ListItems(ctx)
	if err != nil {
		return models.Item{}, fmt.Errorf("list items: %w", err)
	}
	pos := -1
	for _, it := range items {
		if it.Position > pos {
			pos = it.Position
		}
	}

	it := models.Item{
		ID:           uuid.NewString(),
		Name:         name,
		Sites:        sites,
		PriceHistory: []float64{},
		HistoryDates: []time.Time{},
		Position:     pos + 1,
	}
	if it.Sites == nil {
		it.Sites = []models.Site{}
	}
	if err := t.store.SaveItem(ctx, it); err != nil {
		return models.Item{}, fmt.Errorf("save item: %w", err)
	}
	t.log.Info("item created", zap.String("item_id", it.ID), zap.String("name", it.Name), zap.Int("sites", len(it.Sites)))
	return it, nil
}

// UpdateItem applies a patch. When URLs are given the site list is rebuilt in
// that order, keeping history for URLs that were already tracked.
func (t *Tracker) UpdateItem(ctx context.Context, id string, in UpdateItemInput) (models.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, err := t.GetItem(ctx, id)
	if err != nil {
		return models.Item{}, err
	}

	if in.Name != nil {
		it.Name = strings.TrimSpace(*in.Name)
	}
	if in.Position != nil {
		it.Position = *in.Position
	}
	if in.ImageURL != nil {
		if img := strings.TrimSpace(*in.ImageURL); img != "" {
			it.ImageURL = &img
		} else {
			it.ImageURL = nil
		}
	}
	if in.URLs != nil {
		existing := make(map[string]models.Site, len(it.Sites))
		for _, s := range it.Sites {
			existing[s.URL] = s
		}
		sites := make([]models.Site, 0, len(*in.URLs))
		for _, u := range *in.URLs {
			u = u.clean()
			if u.URL == "" {
				continue
			}
			if found, ok := existing[u.URL]; ok {
				if u.Selector != "" {
					found.Selector = u.Selector
				}
				sites = append(sites, found)
				delete(existing, u.URL)
				continue
			}
			sites = append(sites, newSite(u))
		}
		it.Sites = sites
	}

	if err := t.store.SaveItem(ctx, it); err != nil {
		return models.Item{}, fmt.Errorf("save item: %w", err)
	}
	return it, nil
}

// DeleteItem removes an item
func (t *Tracker) DeleteItem(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.store.DeleteItem(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	t.log.Info("item deleted", zap.String("item_id", id))
	return nil
}

// AddSite appends a site to an item
func (t *Tracker) AddSite(ctx context.Context, itemID string, in SiteInput) (models.Item, error) {
	in = in.clean()
	if in.URL == "" {
		return models.Item{}, fmt.Errorf("%w: url required", ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	it, err := t.GetItem(ctx, itemID)
	if err != nil {
		return models.Item{}, err
	}
	it.Sites = append(it.Sites, newSite(in))
	if err := t.store.SaveItem(ctx, it); err != nil {
		return models.Item{}, fmt.Errorf("save item: %w", err)
	}
	t.log.Info("site added", zap.String("item_id", itemID), zap.String("url", in.URL))
	return it, nil
}

// DeleteSite removes a site from an item
func (t *Tracker) DeleteSite(ctx context.Context, itemID, siteID string) (models.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, err := t.GetItem(ctx, itemID)
	if err != nil {
		return models.Item{}, err
	}
	idx := it.FindSite(siteID)
	if idx < 0 {
		return models.Item{}, ErrSiteNotFound
	}
	it.Sites = append(it.Sites[:idx], it.Sites[idx+1:]...)
	if err := t.store.SaveItem(ctx, it); err != nil {
		return models.Item{}, fmt.Errorf("save item: %w", err)
	}
	t.log.Info("site deleted", zap.String("item_id", itemID), zap.String("site_id", siteID))
	return it, nil
}

// Reorder moves an item and renumbers all positions to 0..n-1. It returns the
// number of items.
func (t *Tracker) Reorder(ctx context.Context, id string, dir models.ReorderDirection) (int, error) {
	switch dir {
	case models.ReorderUp, models.ReorderDown, models.ReorderTop:
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, dir)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	items, err := t.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	idx := -1
	for i := range items {
		if items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrItemNotFound
	}

	switch {
	case dir == models.ReorderUp && idx > 0:
		items[idx-1], items[idx] = items[idx], items[idx-1]
	case dir == models.ReorderDown && idx < len(items)-1:
		items[idx+1], items[idx] = items[idx], items[idx+1]
	case dir == models.ReorderTop:
		moved := items[idx]
		copy(items[1:idx+1], items[:idx])
		items[0] = moved
	}
	for i := range items {
		items[i].Position = i
	}

	if err := t.store.SaveItems(ctx, items); err != nil {
		return 0, fmt.Errorf("save items: %w", err)
	}
	return len(items), nil
}

func newSite(in SiteInput) models.Site {
	return models.Site{
		ID:           uuid.NewString(),
		URL:          in.URL,
		Selector:     in.Selector,
		History:      []float64{},
		HistoryDates: []time.Time{},
	}
}
