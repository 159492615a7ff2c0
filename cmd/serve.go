package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/handlers"
	"pricewatch/logger"
	"pricewatch/middleware"
	"pricewatch/scheduler"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled price refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, c *config.Config) error {
	log := logger.Init(c.LogLevel)
	defer func() { _ = logger.Close() }()

	logger.InfoObj("configuration loaded", "config", startupSummary(c))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	taskManager := scheduler.NewTaskManager(a.tracker, c.TaskQueueSize, log, a.metrics)
	defer taskManager.Stop()

	priceChecker, err := scheduler.NewPriceChecker(c.UpdateCron, c.UpdateOnStart, taskManager, log)
	if err != nil {
		return err
	}
	priceChecker.Start()
	defer priceChecker.Stop()

	h := handlers.NewHandlers(a.tracker, taskManager, a.metrics, log)
	srv := &http.Server{
		Addr:              c.Addr(),
		Handler:           newRouter(h, c, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("storage", c.StorageType))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// startupSummary is the loggable subset of c. Secrets are reported only as set or unset.
func startupSummary(c *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"addr":             c.Addr(),
		"storage":          c.StorageType,
		"update_cron":      c.UpdateCron,
		"update_on_start":  c.UpdateOnStart,
		"max_change_ratio": c.MaxChangeRatio,
		"rate_limit":       c.RateLimit,
		"api_key_set":      c.APIKey != "",
		"domains_file":     c.DomainsFile,
	}
}

// newRouter mounts the API behind logging, rate limiting, API key and CORS.
func newRouter(h *handlers.Handlers, c *config.Config, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.RateLimitMiddleware(c.RateLimit))
	r.Use(middleware.APIKeyMiddleware(c.APIKey))
	h.Register(r)
	return middleware.CORS(c.AllowedOrigins, r)
}
