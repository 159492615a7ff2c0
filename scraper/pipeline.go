package scraper

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"pricewatch/metrics"
	"pricewatch/models"
)

// proximityScale is the distance in pixels from the purchase button beyond which
// visible-DOM groups start losing weight.
const proximityScale = 300.0

var (
	priceShaped = regexp.MustCompile(`[$£€]\s?\d`)
	hasDigit    = regexp.MustCompile(`\d`)
	cartText    = regexp.MustCompile(`(?i)add to (cart|bag|basket|trolley)|buy now`)
)

// extraction is the per-fetch input of the rendered pipeline.
type extraction struct {
	URL            string
	Selector       string
	PriceSelectors []string
	VisibleScan    bool
	NavErr         error
}

// pipeline harvests candidates from a loaded page and fuses them.
type pipeline struct {
	opts    Options
	log     *zap.Logger
	bots    *BotDetector
	metrics *metrics.Metrics
}

func newPipeline(opts Options, log *zap.Logger, m *metrics.Metrics) *pipeline {
	return &pipeline{opts: opts, log: log, bots: NewBotDetector(), metrics: m}
}

// run executes every extraction stage against p. A custom selector hit returns
// immediately; otherwise stock text is only decisive when no price was found.
func (pl *pipeline) run(ctx context.Context, p Page, in extraction) models.ExtractionResult {
	log := pl.log.With(zap.String("url", in.URL))
	var pool Pool

	pl.harvestNetwork(p, &pool, log)

	html, err := p.HTML()
	if err != nil {
		log.Warn("page content unavailable", zap.Error(err))
	}
	pl.harvestInlineJSON(html, &pool, log)
	pl.harvestStructuredData(p, html, &pool, log)

	if in.Selector != "" {
		if v, sel, ok := pl.customSelector(ctx, p, in.Selector, log); ok {
			log.Info("custom selector matched, forcing price", zap.String("selector", sel), zap.Float64("price", v))
			return models.PriceResult(v)
		}
		log.Warn("custom selector defined but yielded no price", zap.String("selector", in.Selector))
	}

	pl.harvestSelectors(p, in.PriceSelectors, &pool, log)
	if pool.Len() == 0 {
		pl.reassembleSplit(p, &pool, log)
	}
	if in.VisibleScan {
		pl.harvestVisible(p, &pool, log)
	}

	text, err := p.BodyText()
	if err != nil {
		log.Warn("body text unavailable", zap.Error(err))
	}
	if pool.Len() == 0 {
		pl.harvestFulltext(text, &pool, log)
	}
	pl.harvestNetwork(p, &pool, log)

	outOfStock := DetectStockDepletion(text)
	title, _ := p.Title()
	wall := pl.bots.Detect(text, title)
	if wall.Detected {
		log.Warn("bot wall suspected", zap.Float64("score", wall.Score), zap.Bool("captcha", wall.Captcha), zap.String("reasons", wall.Reason()))
	}

	for src, n := range pool.CountBySource() {
		pl.metrics.AddCandidates(string(src), n)
	}

	notes := runNotes(in.NavErr, wall)
	if sel, ok := Fuse(pool.Candidates()); ok {
		if outOfStock {
			log.Info("stock depletion text ignored, price found", zap.Float64("price", sel.Price))
		}
		log.Info("rendered price chosen",
			zap.Float64("price", sel.Price),
			zap.Bool("json_locked", sel.Locked),
			zap.Int("candidates", sel.Pooled),
			zap.Any("sources", pool.CountBySource()))
		res := models.PriceResult(sel.Price)
		res.Message = notes
		return res
	}

	switch {
	case outOfStock:
		log.Info("no price and stock depletion text found")
		return models.FailedResult(models.ErrorOutOfStock, joinNotes("stock depletion text on page", notes))
	case in.NavErr != nil:
		log.Info("no price after navigation failure", zap.Error(in.NavErr))
		return models.FailedResult(models.ErrorNavigationError, notes)
	default:
		log.Info("no price candidates found")
		return models.FailedResult(models.ErrorNoPriceFound, joinNotes("all extraction strategies exhausted", notes))
	}
}

func (pl *pipeline) harvestNetwork(p Page, pool *Pool, log *zap.Logger) {
	n := 0
	for _, body := range p.NetworkJSON() {
		for _, h := range scanJSONPrices(body, networkJSONPatterns) {
			if pool.Add(h.Value, SourceNetworkJSON, NoPosition) {
				n++
			}
		}
	}
	if n > 0 {
		log.Debug("network JSON candidates", zap.Int("count", n))
	}
}

func (pl *pipeline) harvestInlineJSON(html string, pool *Pool, log *zap.Logger) {
	n := 0
	for _, h := range scanJSONPrices(html, inlineJSONPatterns) {
		if pool.Add(h.Value, SourceInlineJSON, h.Offset) {
			n++
		}
	}
	if n > 0 {
		log.Debug("inline JSON candidates", zap.Int("count", n))
	}
}

func (pl *pipeline) harvestStructuredData(p Page, html string, pool *Pool, log *zap.Logger) {
	var blocks []string
	if p.WaitFor(structuredDataSelector, pl.opts.StructuredDataWait) {
		nodes, err := p.Query(structuredDataSelector)
		if err != nil {
			log.Debug("structured data query failed", zap.Error(err))
		}
		for _, n := range nodes {
			if b := strings.TrimSpace(n.Text); b != "" {
				blocks = append(blocks, b)
			}
		}
	}
	if len(blocks) == 0 {
		blocks = ldJSONBlocksFromHTML(html)
	}

	n := 0
	for _, b := range blocks {
		for _, v := range StructuredDataPrices(b) {
			if pool.Add(v, SourceStructuredData, NoPosition) {
				n++
			}
		}
	}
	if n > 0 {
		log.Debug("structured data candidates", zap.Int("blocks", len(blocks)), zap.Int("count", n))
	}
}

// customSelector tries each comma-separated selector, retrying a missing one once
// after the configured delay. The smallest value of the first usable match wins.
func (pl *pipeline) customSelector(ctx context.Context, p Page, raw string, log *zap.Logger) (float64, string, bool) {
	for _, sel := range splitSelectors(raw) {
		nodes, err := p.Query(sel)
		if err != nil {
			log.Warn("custom selector query failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if len(nodes) == 0 {
			log.Info("custom selector not found, retrying", zap.String("selector", sel), zap.Duration("delay", pl.opts.SelectorRetry))
			if !sleepCtx(ctx, pl.opts.SelectorRetry) {
				return 0, "", false
			}
			if nodes, err = p.Query(sel); err != nil || len(nodes) == 0 {
				log.Info("custom selector still not found", zap.String("selector", sel))
				continue
			}
		}

		txt := strings.TrimSpace(nodes[0].Text)
		if txt == "" {
			log.Info("custom selector found but empty", zap.String("selector", sel))
			continue
		}
		vals := selectorValues(txt)
		if len(vals) == 0 {
			log.Info("custom selector has no numeric values", zap.String("selector", sel), zap.String("text", txt))
			continue
		}
		return minOf(vals), sel, true
	}
	return 0, "", false
}

// harvestSelectors pools the values of the first selector that yields any. A
// domain selector table replaces the generic list.
func (pl *pipeline) harvestSelectors(p Page, domainSelectors []string, pool *Pool, log *zap.Logger) {
	selectors := GenericPriceSelectors
	if len(domainSelectors) > 0 {
		selectors = domainSelectors
	}
	for _, sel := range selectors {
		nodes, err := p.Query(sel)
		if err != nil || len(nodes) == 0 {
			continue
		}
		txt := strings.TrimSpace(nodes[0].Text)
		if txt == "" {
			continue
		}
		vals := selectorValues(txt)
		if len(vals) == 0 {
			continue
		}
		for _, v := range vals {
			pool.Add(v, SourceSelector, nodePosition(nodes[0]))
		}
		log.Debug("selector candidates", zap.String("selector", sel), zap.Float64s("values", vals))
		return
	}
}

// reassembleSplit joins prices rendered across sibling spans, e.g. "$" "49" "." "99".
func (pl *pipeline) reassembleSplit(p Page, pool *Pool, log *zap.Logger) {
	for _, sel := range GenericPriceSelectors {
		container := strings.SplitN(sel, " ", 2)[0]
		assembled, err := p.SpanText(container)
		if err != nil || !hasDigit.MatchString(assembled) {
			continue
		}
		n, ok := tokenNumber(assembled)
		if ok && pool.Add(n, SourceSelector, NoPosition) {
			log.Info("reassembled split price", zap.String("container", container), zap.String("assembled", assembled), zap.Float64("price", n))
			return
		}
	}
}

type visibleGroup struct {
	value     float64
	count     int
	distSum   float64
	distN     int
	positions []int
}

func (g *visibleGroup) score() float64 {
	avg := 0.0
	if g.distN > 0 {
		avg = g.distSum / float64(g.distN)
	}
	return float64(g.count) / math.Max(1, avg/proximityScale)
}

// harvestVisible scores price-like fragments by frequency and proximity to the
// purchase button and pools every occurrence of the best group.
func (pl *pipeline) harvestVisible(p Page, pool *Pool, log *zap.Logger) {
	if !p.WaitForText(priceShaped, pl.opts.VisibleWait) {
		log.Debug("no price-shaped text appeared")
	}
	ax, ay, anchored := purchaseAnchor(p)

	nodes, err := p.Query(strings.Join(visiblePriceSelectors, ", "))
	if err != nil {
		log.Warn("visible price query failed", zap.Error(err))
		return
	}

	index := make(map[string]*visibleGroup)
	var groups []*visibleGroup
	for _, n := range nodes {
		for _, frag := range nodeFragments(n) {
			for _, v := range fragmentValues(frag) {
				key := priceKey(v)
				g, ok := index[key]
				if !ok {
					g = &visibleGroup{value: round2(v)}
					index[key] = g
					groups = append(groups, g)
				}
				g.count++
				g.positions = append(g.positions, nodePosition(n))
				if anchored && n.Box.Visible() {
					cx, cy := n.Box.Center()
					g.distSum += math.Hypot(cx-ax, cy-ay)
					g.distN++
				}
			}
		}
	}
	if len(groups) == 0 {
		return
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].score() > groups[j].score() })
	best := groups[0]
	for _, pos := range best.positions {
		pool.Add(best.value, SourceVisibleDOM, pos)
	}
	log.Debug("visible DOM group pooled",
		zap.Float64("value", best.value),
		zap.Int("count", best.count),
		zap.Float64("score", best.score()),
		zap.Bool("anchored", anchored),
		zap.Int("groups", len(groups)))
}

// purchaseAnchor locates the centre of the first visible add-to-cart control.
func purchaseAnchor(p Page) (float64, float64, bool) {
	for _, sel := range addToCartSelectors {
		nodes, err := p.Query(sel)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if !n.Box.Visible() {
				continue
			}
			if sel == "button" && !cartText.MatchString(n.Text) {
				continue
			}
			x, y := n.Box.Center()
			return x, y, true
		}
	}
	return 0, 0, false
}

// nodeFragments returns the element text and the price-bearing attributes.
func nodeFragments(n Node) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range []string{n.Text, n.Attr("data-price"), n.Attr("aria-label"), n.Attr("title"), n.Attr("content")} {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// fragmentValues extracts price tokens that are not part of promotional wording.
func fragmentValues(frag string) []float64 {
	var out []float64
	for _, loc := range priceToken.FindAllStringIndex(frag, -1) {
		if promoContext(frag, loc[0], loc[1]) {
			continue
		}
		if v, ok := selectorTokenValue(frag[loc[0]:loc[1]]); ok {
			out = append(out, v)
		}
	}
	return out
}

func (pl *pipeline) harvestFulltext(text string, pool *Pool, log *zap.Logger) {
	var vals []float64
	for _, loc := range currencyToken.FindAllStringIndex(text, -1) {
		if promoContext(text, loc[0], loc[1]) {
			continue
		}
		n, ok := tokenNumber(text[loc[0]:loc[1]])
		if ok && pool.Add(n, SourceFulltext, loc[0]) {
			vals = append(vals, n)
		}
	}
	if len(vals) > 0 {
		log.Debug("full-text candidates", zap.Float64s("values", vals))
	}
}

func nodePosition(n Node) int {
	if !n.Box.Visible() {
		return NoPosition
	}
	return int(n.Box.Y)
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func runNotes(navErr error, wall BotWall) string {
	var parts []string
	if navErr != nil {
		parts = append(parts, "navigation: "+navErr.Error())
	}
	if wall.Detected {
		parts = append(parts, fmt.Sprintf("bot wall suspected (score %.1f): %s", wall.Score, wall.Reason()))
	}
	return strings.Join(parts, "; ")
}

func joinNotes(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + "; " + tail
}
