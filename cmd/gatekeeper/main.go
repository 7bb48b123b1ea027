package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fluxpay/gatekeeper/internal/api"
	"github.com/fluxpay/gatekeeper/internal/config"
	"github.com/fluxpay/gatekeeper/internal/ratelimit"
)

func main() {
	logger := newLogger(os.Getenv("GATEKEEPER_LOG_LEVEL"))
	defer func() { _ = logger.Sync() }()

	configPath := os.Getenv("GATEKEEPER_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	// The limiter is constructed once here and passed down explicitly;
	// nothing else in the process creates or caches one.
	limiter := ratelimit.New(
		ratelimit.WithLogger(logger),
		ratelimit.WithCleanupInterval(cfg.Limiter.CleanupInterval.Std()),
		ratelimit.WithMaxEntries(cfg.Limiter.MaxEntries),
		ratelimit.WithMetrics(prometheus.DefaultRegisterer),
	)

	if err := cfg.Apply(limiter); err != nil {
		logger.Fatal("applying tenant policies", zap.Error(err))
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, limiter, logger)
		if err != nil {
			logger.Fatal("watching config", zap.Error(err))
		}
		defer func() { _ = watcher.Close() }()
		logger.Info("hot reload enabled", zap.String("path", configPath))
	}

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		logger.Fatal("building gateway", zap.Error(err))
	}

	server := api.NewServer(cfg, logger, limiter, gateway)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		limiter.Shutdown()
		os.Exit(0)
	}()

	logger.Info("gatekeeper starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("upstream", cfg.Server.Upstream))

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildGateway returns the tenant-traffic handler: a reverse proxy when an
// upstream is configured, nil to run the admin surface alone.
func buildGateway(cfg *config.Config, logger *zap.Logger) (http.Handler, error) {
	if cfg.Server.Upstream == "" {
		return nil, nil
	}

	upstream, err := url.Parse(cfg.Server.Upstream)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, proxyErr error) {
		logger.Error("proxy error", zap.String("path", r.URL.Path), zap.Error(proxyErr))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy, nil
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if level != "" {
		if parsed, err := zap.ParseAtomicLevel(level); err == nil {
			zcfg.Level = parsed
		}
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
