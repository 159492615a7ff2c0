package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/models"
)

const staticUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

// StaticFetcher extracts a price from server-rendered HTML with a single GET.
// First match wins; there is no candidate fusion.
type StaticFetcher struct {
	client  HTTPClient
	timeout time.Duration
	log     *zap.Logger
}

// NewStaticFetcher creates a static fetcher. A zero timeout means 25s.
func NewStaticFetcher(client HTTPClient, timeout time.Duration, log *zap.Logger) *StaticFetcher {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if client == nil {
		client = NewRestyClient(timeout)
	}
	return &StaticFetcher{client: client, timeout: timeout, log: logger.OrNop(log)}
}

// browserHeaders mimics a desktop browser; the referer is the site root.
func browserHeaders(rawURL string) map[string]string {
	return map[string]string{
		"User-Agent":      staticUserAgent,
		"Accept-Language": "en-US,en;q=0.9",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Referer":         "https://" + models.HostDomain(rawURL) + "/",
	}
}

// Fetch runs the static pipeline: status check, stock check, selectors, meta, currency scan.
func (f *StaticFetcher) Fetch(ctx context.Context, rawURL, selector string) models.ExtractionResult {
	doc, res, ok := f.load(ctx, rawURL)
	if !ok {
		return res
	}
	log := f.log.With(zap.String("url", rawURL))

	text := visibleText(doc)
	if DetectStockDepletion(text) {
		log.Info("stock depletion text found")
		return models.FailedResult(models.ErrorOutOfStock, "stock depletion text on page")
	}

	raw, source := firstPriceText(doc, selector, text)
	if raw == "" {
		log.Info("no price text found")
		return models.FailedResult(models.ErrorNoPriceFound, "no price element, meta tag or currency text")
	}

	v, parsed := ParsePrice(raw)
	if !parsed || !inRange(v) {
		log.Info("price text not usable", zap.String("text", raw), zap.String("source", source))
		return models.FailedResult(models.ErrorNoPriceFound, fmt.Sprintf("unparseable price text %q", raw))
	}
	log.Debug("static price", zap.Float64("price", v), zap.String("source", source))
	return models.PriceResult(v)
}

// load performs the GET and parses the body. On failure it returns the result to report.
func (f *StaticFetcher) load(ctx context.Context, rawURL string) (*goquery.Document, models.ExtractionResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Get(ctx, rawURL, browserHeaders(rawURL))
	if err != nil {
		f.log.Warn("static GET failed", zap.String("url", rawURL), zap.Error(err))
		return nil, models.FailedResult(models.ErrorNavigationError, fmt.Sprintf("GET %s: %v", rawURL, err)), false
	}
	if resp.StatusCode() >= 400 {
		f.log.Warn("static GET rejected", zap.String("url", rawURL), zap.Int("status", resp.StatusCode()))
		return nil, models.FailedResult(models.ErrorBadStatus, fmt.Sprintf("HTTP %d", resp.StatusCode())), false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, models.FailedResult(models.ErrorUnknown, fmt.Sprintf("parse html: %v", err)), false
	}
	return doc, models.ExtractionResult{}, true
}

// visibleText returns body text with script-like elements removed.
func visibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()
	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return text
}

// firstPriceText returns the first non-empty price text and where it came from.
func firstPriceText(doc *goquery.Document, selector, text string) (string, string) {
	selectors := GenericPriceSelectors
	if custom := splitSelectors(selector); len(custom) > 0 {
		selectors = custom
	}
	for _, sel := range selectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if txt := elementText(s); txt != "" {
			return txt, sel
		}
	}

	for _, sel := range metaPriceSelectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v, sel
		}
	}

	if m := currencyToken.FindString(text); m != "" {
		return m, "currency_text"
	}
	return "", ""
}

// elementText prefers visible text and falls back to the content attribute.
func elementText(s *goquery.Selection) string {
	if txt := strings.TrimSpace(s.Text()); txt != "" {
		return txt
	}
	return strings.TrimSpace(s.AttrOr("content", ""))
}

// splitSelectors splits a comma-separated selector list, dropping blanks.
func splitSelectors(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
