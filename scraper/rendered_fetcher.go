package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/models"
)

const dockerChromium = "/usr/bin/chromium-browser"

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

var viewports = []struct{ w, h int }{
	{1920, 1080},
	{1536, 864},
	{1440, 900},
	{1366, 768},
	{1280, 800},
}

// stealthJS hides the usual automation fingerprints before any page script runs.
const stealthJS = `(() => {
	try {
		Object.defineProperty(navigator, 'webdriver', { get: () => false });
		Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
		Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
		window.chrome = { runtime: {} };
		const originalQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications' ?
				Promise.resolve({ state: Notification.permission }) :
				originalQuery(parameters)
		);
	} catch (e) {}
})();`

// RenderedFetcher drives a headless browser. Every fetch launches its own browser
// process and tears it down afterwards.
type RenderedFetcher struct {
	opts     Options
	log      *zap.Logger
	pipeline *pipeline
}

// NewRenderedFetcher creates a rendered-page fetcher.
func NewRenderedFetcher(opts Options, log *zap.Logger, m *metrics.Metrics) *RenderedFetcher {
	log = logger.OrNop(log)
	return &RenderedFetcher{opts: opts, log: log, pipeline: newPipeline(opts, log, m)}
}

// Fetch loads the page and runs the extraction pipeline. Navigation failures are
// recorded and extraction still runs on whatever loaded.
func (f *RenderedFetcher) Fetch(ctx context.Context, in extraction) (res models.ExtractionResult) {
	log := f.log.With(zap.String("url", in.URL))
	defer func() {
		if r := recover(); r != nil {
			log.Error("rendered fetch panicked", zap.Any("panic", r))
			res = models.FailedResult(models.ErrorUnknown, fmt.Sprintf("rendered fetch: %v", r))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	browser, teardown, err := f.launch(ctx)
	if err != nil {
		log.Warn("browser launch failed", zap.Error(err))
		return models.FailedResult(models.ErrorUnknown, err.Error())
	}
	defer teardown()

	page, err := f.openPage(browser, randomUserAgent())
	if err != nil {
		log.Warn("browser page setup failed", zap.Error(err))
		return models.FailedResult(models.ErrorUnknown, err.Error())
	}

	rp := newRodPage(page, log)
	rp.captureJSON()

	in.NavErr = navigate(page, in.URL, f.opts.NavigationTimeout, proto.PageLifecycleEventNameDOMContentLoaded)
	if in.NavErr != nil {
		log.Warn("navigation warning", zap.Error(in.NavErr))
	}
	sleepCtx(ctx, f.settleDelay())

	return f.pipeline.run(ctx, rp, in)
}

// launch starts a fresh browser. The returned teardown swallows every error.
func (f *RenderedFetcher) launch(ctx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Leakless(false).
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars")
	if bin := f.browserBin(); bin != "" {
		l = l.Bin(bin)
	}

	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}

	teardown := func() {
		if err := browser.Close(); err != nil {
			f.log.Debug("browser close failed", zap.Error(err))
		}
		l.Kill()
		l.Cleanup()
	}
	return browser, teardown, nil
}

// browserBin prefers the configured binary, then the system Chromium found in the
// container image. Empty means rod picks or downloads one.
func (f *RenderedFetcher) browserBin() string {
	if f.opts.BrowserBin != "" {
		return f.opts.BrowserBin
	}
	if _, err := os.Stat(dockerChromium); err == nil {
		return dockerChromium
	}
	if p, ok := launcher.LookPath(); ok {
		return p
	}
	return ""
}

func (f *RenderedFetcher) openPage(browser *rod.Browser, ua string) (*rod.Page, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	vp := viewports[rand.Intn(len(viewports))]
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.w,
		Height:            vp.h,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if _, err := page.EvalOnNewDocument(stealthJS); err != nil {
		f.log.Debug("stealth script not installed", zap.Error(err))
	}
	return page, nil
}

// navigate loads url and waits up to timeout for the lifecycle event.
func navigate(page *rod.Page, url string, timeout time.Duration, event proto.PageLifecycleEventName) error {
	p := page.Timeout(timeout)
	defer p.CancelTimeout()

	wait := p.WaitNavigation(event)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()
	if err := p.GetContext().Err(); err != nil {
		return fmt.Errorf("%s not reached within %s: %w", event, timeout, err)
	}
	return nil
}

// settleDelay is a jittered pause for client-side rendering after navigation.
func (f *RenderedFetcher) settleDelay() time.Duration {
	d := f.opts.SettleMin
	if span := f.opts.SettleMax - f.opts.SettleMin; span > 0 {
		d += time.Duration(rand.Int63n(int64(span + 1)))
	}
	return d
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
