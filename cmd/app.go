package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/repository"
	"pricewatch/scraper"
	"pricewatch/services"
	"pricewatch/storage"
)

// app is the object graph shared by every command.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   storage.Store
	scraper *scraper.PriceScraper
	tracker *services.Tracker
}

// newApp wires storage, scraper and tracker. An ephemeral app keeps state in
// memory so one-shot commands never contend for the configured store.
func newApp(ctx context.Context, c *config.Config, log *zap.Logger, ephemeral bool) (*app, error) {
	log = logger.OrNop(log)
	m := metrics.New()

	var (
		store storage.Store
		err   error
	)
	if ephemeral {
		store = storage.NewMemoryStore()
	} else {
		store, err = storage.NewStore(c.StorageType, c.BBoltPath, c.DatabaseURL, repository.Opener(log))
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", c.StorageType, err)
		}
	}

	ps := scraper.New(scraperOptions(c), nil, log, m)
	tracker := services.NewTracker(store, ps, services.NewPlausibilityGuard(c.MaxChangeRatio), log, m)

	a := &app{cfg: c, log: log, metrics: m, store: store, scraper: ps, tracker: tracker}
	if err := a.seedDomains(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("app initialized", zap.String("storage", storageName(c, ephemeral)))
	return a, nil
}

func (a *app) seedDomains(ctx context.Context) error {
	if a.cfg.DomainsFile == "" {
		return nil
	}
	seed, err := config.LoadDomainSettings(a.cfg.DomainsFile)
	if err != nil {
		return fmt.Errorf("load domain settings: %w", err)
	}
	seeded, err := a.tracker.SeedDomainSettings(ctx, seed)
	if err != nil {
		return err
	}
	if seeded {
		a.log.Info("domain settings seeded", zap.String("file", a.cfg.DomainsFile), zap.Int("count", len(seed)))
	}
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
}

func scraperOptions(c *config.Config) scraper.Options {
	return scraper.Options{
		StaticTimeout:      c.StaticTimeout,
		NavigationTimeout:  c.NavigationTimeout,
		TitleTimeout:       c.TitleTimeout,
		SettleMin:          c.SettleMin,
		SettleMax:          c.SettleMax,
		SelectorRetry:      c.SelectorRetry,
		StructuredDataWait: c.StructuredDataWait,
		VisibleWait:        c.VisibleWait,
		BrowserBin:         c.BrowserBin,
	}
}

func storageName(c *config.Config, ephemeral bool) string {
	if ephemeral {
		return config.StorageMemory
	}
	return c.StorageType
}
