// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fluxpay/gatekeeper/internal/config"
	"github.com/fluxpay/gatekeeper/internal/ratelimit"
)

// Server hosts the administrative API for tenant policy management plus, when
// an upstream gateway handler is given, the rate-limited pass-through for
// tenant traffic. Admin endpoints are off the hot path; the gateway handler
// is the hot path and goes through the limiter middleware once per request.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	limiter    *ratelimit.Limiter
	router     chi.Router
	httpServer *http.Server
	guard      *adminGuard
}

// NewServer wires routes. gateway may be nil to run the admin surface alone.
func NewServer(cfg *config.Config, logger *zap.Logger, limiter *ratelimit.Limiter, gateway http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		router:  chi.NewRouter(),
		guard:   newAdminGuard(50, 100),
	}

	s.setupRoutes(gateway)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(gateway http.Handler) {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.guard.middleware)

		r.Get("/tiers", s.handleGetTiers)
		r.Route("/tenants/{id}", func(r chi.Router) {
			r.Get("/config", s.handleGetConfig)
			r.Put("/tier", s.handleSetTier)
			r.Put("/overrides", s.handleSetOverride)
			r.Get("/stats", s.handleGetStats)
			r.Post("/reset", s.handleReset)
		})
	})

	if gateway != nil {
		mw := ratelimit.NewMiddleware(s.limiter, s.logger)
		mw.UseIETFDraft(s.cfg.Limiter.IETFHeaders)
		s.router.Handle("/*", mw.Handler(gateway))
	}
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
