package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alex-user-go/rates/internal/config"
	"github.com/alex-user-go/rates/internal/handler"
	"github.com/alex-user-go/rates/internal/middleware"
	"github.com/alex-user-go/rates/internal/obs"
	"github.com/alex-user-go/rates/internal/quote"
	"github.com/alex-user-go/rates/internal/quote/cache"
	"github.com/alex-user-go/rates/internal/ratelimit"
	"github.com/alex-user-go/rates/internal/vendor"
)

// limitedRoutes are the rate limited routes counted individually in stats.
var limitedRoutes = []string{"POST /api/rates", "GET /api/test", "POST /api/test"}

// App is the assembled HTTP service.
type App struct {
	Handler http.Handler
	Limiter *ratelimit.Limiter
	Metrics *obs.Metrics

	closers []func() error
}

// Run initializes and runs the application.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	// Configure server; writes must outlive a full vendor call.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      a.Handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Vendor.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", srv.Addr,
			"env", cfg.Env,
			"rate_limit_enabled", cfg.RateLimit.Enabled,
			"rate_limit_backend", cfg.RateLimit.Backend,
			"vendor_mock", cfg.Vendor.Mock,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// Build wires the service from cfg. Close releases what it opened.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Metrics: obs.NewMetrics(logger)}

	st, closeStore, err := OpenStore(ctx, cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.Limiter = ratelimit.New(st, cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.WithEnabled(cfg.RateLimit.Enabled))

	var stats obs.StatsRecorder = a.Metrics
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Stats.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		stats = obs.MultiRecorder{a.Metrics, obs.NewRedisStats(rdb,
			obs.WithStatsPrefix(cfg.Stats.Prefix),
			obs.WithStatsTTL(cfg.Stats.TTL),
			obs.WithStatsRoutes(limitedRoutes...),
		)}
	}

	var quoteCache *cache.Cache[[]byte]
	if cfg.CacheTTL > 0 {
		quoteCache = cache.New[[]byte](cfg.CacheTTL)
		a.closers = append(a.closers, func() error {
			quoteCache.Close()
			return nil
		})
	}

	service := quote.NewService(cfg.Catalog, newGateway(cfg.Vendor), newPolicy(cfg), quoteCache, a.Metrics, logger)
	h := handler.New(service, a.Metrics, logger, cfg.APIName)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rates", h.Rates)
	mux.HandleFunc("GET /api/test", h.Test)
	mux.HandleFunc("POST /api/test", h.Test)
	mux.HandleFunc("GET /api", h.Info)
	mux.HandleFunc("GET /{$}", h.Info)
	mux.HandleFunc("GET /healthz", obs.HealthHandler(logger))
	mux.HandleFunc("GET /metrics", a.Metrics.MetricsHandler())
	for _, path := range []string{"/api/rates", "/api/test", "/api", "/{$}", "/healthz", "/metrics"} {
		mux.HandleFunc(path, h.MethodNotAllowed)
	}
	mux.HandleFunc("/", h.NotFound)

	clientIP := middleware.ClientIP(cfg.TrustProxy)

	// Wrap with middleware
	var root http.Handler = mux
	root = middleware.RateLimit(middleware.RateLimitOptions{
		Limiter: a.Limiter,
		KeyFn:   clientIP,
		Stats:   stats,
		Logger:  logger,
	})(root)
	root = middleware.Security(middleware.SecurityOptions{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		Headers:        cfg.Security.Headers,
		RequireHTTPS:   cfg.Security.RequireHTTPS,
	})(root)
	a.Handler = middleware.Logging(logger, clientIP)(root)

	return a, nil
}

// Close releases stores, clients and the cache in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newGateway(cfg config.VendorConfig) vendor.Gateway {
	if cfg.Mock {
		return vendor.MockGateway{}
	}
	opts := []vendor.HTTPOption{vendor.WithUserAgent("rates-api/" + handler.APIVersion)}
	if cfg.RPS > 0 {
		opts = append(opts, vendor.WithThrottle(cfg.RPS, cfg.Burst))
	}
	return vendor.NewHTTPGateway(cfg.URL, cfg.ConnectTimeout, cfg.Timeout, opts...)
}

func newPolicy(cfg *config.Config) quote.AvailabilityPolicy {
	if !cfg.AvailabilityOverride {
		return quote.NoOverride{}
	}
	return quote.NewPricedPolicy(cfg.AlwaysAvailable...)
}
