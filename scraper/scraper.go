// Package scraper extracts a single product price from retailer pages, either from
// server-rendered HTML or from a headless browser session.
package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/models"
)

// Options tunes fetch timeouts and delays.
type Options struct {
	StaticTimeout      time.Duration
	NavigationTimeout  time.Duration
	TitleTimeout       time.Duration
	SettleMin          time.Duration
	SettleMax          time.Duration
	SelectorRetry      time.Duration
	StructuredDataWait time.Duration
	VisibleWait        time.Duration
	BrowserBin         string
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		StaticTimeout:      25 * time.Second,
		NavigationTimeout:  60 * time.Second,
		TitleTimeout:       45 * time.Second,
		SettleMin:          2000 * time.Millisecond,
		SettleMax:          2500 * time.Millisecond,
		SelectorRetry:      10 * time.Second,
		StructuredDataWait: 5 * time.Second,
		VisibleWait:        10 * time.Second,
	}
}

// Request describes one price fetch.
type Request struct {
	URL      string
	Mode     models.ScraperMode
	Selector string
	// PriceSelectors replaces the generic selector list for rendered fetches.
	PriceSelectors []string
	// VisibleScan enables the visible-DOM proximity scan.
	VisibleScan bool
}

type renderer interface {
	Fetch(ctx context.Context, in extraction) models.ExtractionResult
	Title(ctx context.Context, rawURL string) string
}

var _ renderer = (*RenderedFetcher)(nil)

// PriceScraper routes requests to the static or rendered fetcher.
type PriceScraper struct {
	static   *StaticFetcher
	rendered renderer
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New creates a PriceScraper. client may be nil to use resty.
func New(opts Options, client HTTPClient, log *zap.Logger, m *metrics.Metrics) *PriceScraper {
	log = logger.OrNop(log)
	return &PriceScraper{
		static:   NewStaticFetcher(client, opts.StaticTimeout, log),
		rendered: NewRenderedFetcher(opts, log, m),
		metrics:  m,
		log:      log,
	}
}

// FetchPrice extracts the price of req.URL. simple mode uses the static fetcher;
// auto and puppeteer render the page.
func (s *PriceScraper) FetchPrice(ctx context.Context, req Request) models.ExtractionResult {
	mode := req.Mode
	if mode == "" {
		mode = models.ScraperAuto
	}
	start := time.Now()

	var res models.ExtractionResult
	if mode.UsesBrowser() {
		res = s.rendered.Fetch(ctx, extraction{
			URL:            req.URL,
			Selector:       req.Selector,
			PriceSelectors: req.PriceSelectors,
			VisibleScan:    req.VisibleScan,
		})
	} else {
		res = s.static.Fetch(ctx, req.URL, req.Selector)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveFetch(string(mode), string(res.ErrorKind), elapsed)
	s.log.Info("price fetched",
		zap.String("url", req.URL),
		zap.String("mode", string(mode)),
		zap.String("error_kind", string(res.ErrorKind)),
		zap.Float64("price", res.Value()),
		zap.Duration("elapsed", elapsed))
	return res
}

// FetchTitle returns a best-effort product title: static HTML first, then the
// rendered page, then the hostname.
func (s *PriceScraper) FetchTitle(ctx context.Context, rawURL string) string {
	if t := s.static.Title(ctx, rawURL); t != "" {
		return t
	}
	if t := s.rendered.Title(ctx, rawURL); t != "" {
		return t
	}
	return models.HostDomain(rawURL)
}
