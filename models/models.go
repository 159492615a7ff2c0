package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScraperMode selects which fetcher handles a site
type ScraperMode string

const (
	ScraperAuto      ScraperMode = "auto"
	ScraperSimple    ScraperMode = "simple"
	ScraperPuppeteer ScraperMode = "puppeteer"
)

// ParseScraperMode accepts an empty string as auto.
func ParseScraperMode(s string) (ScraperMode, error) {
	switch ScraperMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScraperAuto:
		return ScraperAuto, nil
	case ScraperSimple:
		return ScraperSimple, nil
	case ScraperPuppeteer:
		return ScraperPuppeteer, nil
	default:
		return "", fmt.Errorf("unknown scraper mode %q", s)
	}
}

// UsesBrowser reports whether the mode is served by the rendered-page fetcher
func (m ScraperMode) UsesBrowser() bool {
	return m != ScraperSimple
}

// Site is one retailer URL tracked for an item
type Site struct {
	ID           string      `json:"id"`
	URL          string      `json:"url"`
	Selector     string      `json:"selector,omitempty"`
	Scraper      ScraperMode `json:"scraper,omitempty"`
	History      []float64   `json:"history"`
	HistoryDates []time.Time `json:"historyDates"`
	CurrentPrice *float64    `json:"currentPrice"`
	LastUpdated  *time.Time  `json:"lastUpdated"`
}

// HasPrice returns true if the site has a current price
func (s *Site) HasPrice() bool {
	return s.CurrentPrice != nil
}

// RecordPrice sets the current price and appends to the parallel history arrays
func (s *Site) RecordPrice(price float64, at time.Time) {
	p := price
	t := at
	s.CurrentPrice = &p
	s.LastUpdated = &t
	s.History = append(s.History, price)
	s.HistoryDates = append(s.HistoryDates, at)
}

// Domain returns the site's hostname without a leading "www."
func (s *Site) Domain() string {
	return HostDomain(s.URL)
}

// PriceChangeReason returns a human-readable description of a price move
func (s *Site) PriceChangeReason(newPrice float64) string {
	if !s.HasPrice() {
		return "first price check"
	}
	oldPrice := *s.CurrentPrice
	if oldPrice <= 0 {
		return "no previous price to compare"
	}

	change := ((newPrice - oldPrice) / oldPrice) * 100
	switch {
	case change < 0:
		return fmt.Sprintf("price dropped by %.1f%%", -change)
	case change > 0:
		return fmt.Sprintf("price increased by %.1f%%", change)
	default:
		return "no price change"
	}
}

// Item is a tracked product with one or more sites
type Item struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Sites        []Site      `json:"sites"`
	PriceHistory []float64   `json:"priceHistory"`
	HistoryDates []time.Time `json:"historyDates"`
	CurrentPrice *float64    `json:"currentPrice"`
	MinPrice     *float64    `json:"minPrice"`
	MaxPrice     *float64    `json:"maxPrice"`
	BestURL      *string     `json:"bestUrl"`
	LastUpdated  *time.Time  `json:"lastUpdated"`
	Position     int         `json:"position"`
	ImageURL     *string     `json:"imageUrl"`
}

// FindSite returns the index of the site with the given ID or -1
func (it *Item) FindSite(siteID string) int {
	for i := range it.Sites {
		if it.Sites[i].ID == siteID {
			return i
		}
	}
	return -1
}

// RecomputeAggregates folds site prices into the item's best price and history.
// It reports false when no site has a price yet.
func (it *Item) RecomputeAggregates(at time.Time) bool {
	var best *Site
	for i := range it.Sites {
		s := &it.Sites[i]
		if !s.HasPrice() {
			continue
		}
		if best == nil || *s.CurrentPrice < *best.CurrentPrice {
			best = s
		}
	}
	if best == nil {
		return false
	}

	price := *best.CurrentPrice
	bestURL := best.URL
	it.CurrentPrice = &price
	it.BestURL = &bestURL
	it.PriceHistory = append(it.PriceHistory, price)
	it.HistoryDates = append(it.HistoryDates, at)

	var lo, hi float64
	seen := false
	for _, s := range it.Sites {
		for _, v := range s.History {
			if v <= 0 {
				continue
			}
			if !seen || v < lo {
				lo = v
			}
			if !seen || v > hi {
				hi = v
			}
			seen = true
		}
	}
	if seen {
		it.MinPrice = &lo
		it.MaxPrice = &hi
	}

	t := at
	it.LastUpdated = &t
	return true
}

// Clone returns a deep copy so stores never share slices with callers
func (it Item) Clone() Item {
	out := it
	out.Sites = make([]Site, len(it.Sites))
	for i, s := range it.Sites {
		s.History = append([]float64(nil), s.History...)
		s.HistoryDates = append([]time.Time(nil), s.HistoryDates...)
		s.CurrentPrice = clonePtr(s.CurrentPrice)
		s.LastUpdated = clonePtr(s.LastUpdated)
		out.Sites[i] = s
	}
	out.PriceHistory = append([]float64(nil), it.PriceHistory...)
	out.HistoryDates = append([]time.Time(nil), it.HistoryDates...)
	out.CurrentPrice = clonePtr(it.CurrentPrice)
	out.MinPrice = clonePtr(it.MinPrice)
	out.MaxPrice = clonePtr(it.MaxPrice)
	out.BestURL = clonePtr(it.BestURL)
	out.LastUpdated = clonePtr(it.LastUpdated)
	out.ImageURL = clonePtr(it.ImageURL)
	return out
}

// DomainSetting is the per-domain scraping configuration
type DomainSetting struct {
	Domain         string      `json:"domain" yaml:"domain"`
	Selector       string      `json:"selector,omitempty" yaml:"selector"`
	Scraper        ScraperMode `json:"scraper" yaml:"scraper"`
	PriceSelectors []string    `json:"priceSelectors,omitempty" yaml:"price_selectors"`
}

// ReorderDirection moves an item within the list
type ReorderDirection string

const (
	ReorderUp   ReorderDirection = "up"
	ReorderDown ReorderDirection = "down"
	ReorderTop  ReorderDirection = "top"
)

// HostDomain returns the lower-cased hostname of rawURL without "www.".
// Unparseable input yields an empty string.
func HostDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
