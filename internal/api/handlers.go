// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fluxpay/gatekeeper/internal/ratelimit"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

// parseScope maps the ?scope= query parameter onto a stats/reset scope.
// The default mirrors the unscoped counter key.
func parseScope(r *http.Request) (ratelimit.Scope, error) {
	switch r.URL.Query().Get("scope") {
	case "", "default":
		return ratelimit.ScopeDefault, nil
	case "all":
		return ratelimit.ScopeAll, nil
	default:
		return ratelimit.ScopeDefault, fmt.Errorf("scope must be \"default\" or \"all\"")
	}
}

func (s *Server) handleGetTiers(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.limiter.Tiers())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	s.respondJSON(w, http.StatusOK, s.limiter.GetConfig(tenantID))
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var body struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}

	if err := s.limiter.SetTier(tenantID, body.Tier); err != nil {
		if errors.Is(err, ratelimit.ErrUnknownTier) {
			s.respondError(w, http.StatusBadRequest, err)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("tier updated",
		zap.String("tenant", tenantID),
		zap.String("tier", body.Tier))
	s.respondJSON(w, http.StatusOK, s.limiter.GetConfig(tenantID))
}

type overrideRequest struct {
	Endpoint          string `json:"endpoint"`
	Method            string `json:"method"`
	RequestsPerSecond *int   `json:"requests_per_second"`
	RequestsPerMinute *int   `json:"requests_per_minute"`
	RequestsPerHour   *int   `json:"requests_per_hour"`
	BurstMultiplier   *int   `json:"burst_multiplier"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var body overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if body.Endpoint == "" {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("endpoint is required"))
		return
	}

	s.limiter.SetEndpointOverride(tenantID, body.Endpoint, body.Method, ratelimit.Override{
		RequestsPerSecond: body.RequestsPerSecond,
		RequestsPerMinute: body.RequestsPerMinute,
		RequestsPerHour:   body.RequestsPerHour,
		BurstMultiplier:   body.BurstMultiplier,
	})

	s.logger.Info("endpoint override updated",
		zap.String("tenant", tenantID),
		zap.String("endpoint", body.Endpoint),
		zap.String("method", body.Method))
	s.respondJSON(w, http.StatusOK, s.limiter.GetConfig(tenantID))
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	scope, err := parseScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	s.respondJSON(w, http.StatusOK, s.limiter.Stats(tenantID, scope))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	scope, err := parseScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	s.limiter.Reset(tenantID, scope)
	s.logger.Info("tenant counters reset", zap.String("tenant", tenantID))
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
