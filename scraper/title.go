package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// titleSettle lets dynamic pages fill in their headings before the title is read.
const titleSettle = 4 * time.Second

// minTitleLen is the shortest document title accepted without trying headings.
const minTitleLen = 3

// pageTitle reads the document title, falling back to product headings and
// og:title when the title is missing or too short. Empty when nothing qualifies.
func pageTitle(p Page) string {
	title, err := p.Title()
	title = strings.TrimSpace(title)
	if err == nil && len(title) >= minTitleLen {
		return title
	}
	for _, sel := range titleSelectors {
		nodes, err := p.Query(sel)
		if err != nil || len(nodes) == 0 {
			continue
		}
		t := strings.TrimSpace(nodes[0].Text)
		if t == "" {
			t = strings.TrimSpace(nodes[0].Attr("content"))
		}
		if t != "" {
			return t
		}
	}
	return ""
}

// Title fetches the page statically and reads its title. Empty on any failure.
func (f *StaticFetcher) Title(ctx context.Context, rawURL string) string {
	doc, res, ok := f.load(ctx, rawURL)
	if !ok {
		f.log.Debug("static title fetch failed", zap.String("url", rawURL), zap.String("error_kind", string(res.ErrorKind)))
		return ""
	}
	return pageTitle(&docPage{doc: doc})
}

// Title renders the page until the network is almost idle and reads its title.
// Empty on any failure.
func (f *RenderedFetcher) Title(ctx context.Context, rawURL string) (title string) {
	log := f.log.With(zap.String("url", rawURL))
	defer func() {
		if r := recover(); r != nil {
			log.Error("rendered title fetch panicked", zap.Any("panic", r))
			title = ""
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	browser, teardown, err := f.launch(ctx)
	if err != nil {
		log.Warn("browser launch failed", zap.Error(err))
		return ""
	}
	defer teardown()

	page, err := f.openPage(browser, staticUserAgent)
	if err != nil {
		log.Warn("browser page setup failed", zap.Error(err))
		return ""
	}
	if err := navigate(page, rawURL, f.opts.TitleTimeout, proto.PageLifecycleEventNameNetworkAlmostIdle); err != nil {
		log.Warn("navigation warning", zap.Error(err))
	}
	sleepCtx(ctx, titleSettle)

	return pageTitle(newRodPage(page, log))
}
