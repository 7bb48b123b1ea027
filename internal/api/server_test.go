package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxpay/gatekeeper/internal/config"
	"github.com/fluxpay/gatekeeper/internal/ratelimit"
)

func newTestServer(t *testing.T, gateway http.Handler) (*Server, *ratelimit.Limiter) {
	t.Helper()
	limiter := ratelimit.New()
	t.Cleanup(limiter.Shutdown)
	return NewServer(config.Default(), zap.NewNop(), limiter, gateway), limiter
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestAdminAPI(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("lists the tier catalog", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodGet, "/v1/tiers", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var tiers map[string]ratelimit.Tier
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tiers))
		assert.Contains(t, tiers, "starter")
		assert.Contains(t, tiers, "enterprise")
	})

	t.Run("sets a tenant tier", func(t *testing.T) {
		s, limiter := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodPut, "/v1/tenants/acme/tier", `{"tier":"growth"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "growth", limiter.GetConfig("acme").Tier.Name)
	})

	t.Run("unknown tier is a 400, not a fallback", func(t *testing.T) {
		s, limiter := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodPut, "/v1/tenants/acme/tier", `{"tier":"platinum"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown tier")
		assert.Equal(t, ratelimit.DefaultTierName, limiter.GetConfig("acme").Tier.Name)
	})

	t.Run("sets an endpoint override", func(t *testing.T) {
		s, limiter := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodPut, "/v1/tenants/acme/overrides",
			`{"endpoint":"/v1/charges","method":"POST","requests_per_minute":10}`)
		require.Equal(t, http.StatusOK, rec.Code)

		cfg := limiter.GetConfig("acme")
		require.Contains(t, cfg.EndpointOverrides, "POST:/v1/charges")
		require.NotNil(t, cfg.EndpointOverrides["POST:/v1/charges"].RequestsPerMinute)
		assert.Equal(t, 10, *cfg.EndpointOverrides["POST:/v1/charges"].RequestsPerMinute)
		assert.Nil(t, cfg.EndpointOverrides["POST:/v1/charges"].RequestsPerSecond,
			"unspecified fields stay unset so they inherit from the tier")
	})

	t.Run("override without endpoint is a 400", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodPut, "/v1/tenants/acme/overrides", `{"method":"POST"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns stats with an explicit scope", func(t *testing.T) {
		s, limiter := newTestServer(t, nil)
		limiter.Check("acme", "/v1/charges", "POST")

		rec := doJSON(t, s, http.MethodGet, "/v1/tenants/acme/stats?scope=all", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats ratelimit.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.RequestsInWindow)

		rec = doJSON(t, s, http.MethodGet, "/v1/tenants/acme/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 0, stats.RequestsInWindow, "default scope ignores endpoint keys")
	})

	t.Run("rejects unknown scopes", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s, http.MethodGet, "/v1/tenants/acme/stats?scope=everything", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("resets tenant counters", func(t *testing.T) {
		s, limiter := newTestServer(t, nil)
		limiter.Check("acme", "", "")

		rec := doJSON(t, s, http.MethodPost, "/v1/tenants/acme/reset", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, limiter.Stats("acme", ratelimit.ScopeDefault).RequestsInWindow)
	})

	t.Run("returns tenant config", func(t *testing.T) {
		s, limiter := newTestServer(t, nil)
		require.NoError(t, limiter.SetTier("acme", "free"))

		rec := doJSON(t, s, http.MethodGet, "/v1/tenants/acme/config", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var cfg ratelimit.TenantConfig
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
		assert.Equal(t, "free", cfg.Tier.Name)
	})
}

func TestGateway(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream"))
	})

	t.Run("passes admitted traffic through with headers", func(t *testing.T) {
		s, _ := newTestServer(t, upstream)

		req := httptest.NewRequest(http.MethodGet, "/v1beta/payments", nil)
		req.Header.Set(ratelimit.TenantHeader, "acme")
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "upstream", rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("denies over-limit traffic with 429", func(t *testing.T) {
		s, limiter := newTestServer(t, upstream)
		limiter.SetConfig("acme", ratelimit.TenantConfig{Tier: ratelimit.Tier{
			Name: "tiny", RequestsPerSecond: 1, RequestsPerMinute: 1,
			RequestsPerHour: 10, BurstMultiplier: 1,
		}})

		var rec *httptest.ResponseRecorder
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/v1beta/payments", nil)
			req.Header.Set(ratelimit.TenantHeader, "acme")
			rec = httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)
		}

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("admin routes are not swallowed by the gateway catch-all", func(t *testing.T) {
		s, _ := newTestServer(t, upstream)
		rec := doJSON(t, s, http.MethodGet, "/v1/tiers", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEqual(t, "upstream", rec.Body.String())
	})
}

func TestAdminGuard(t *testing.T) {
	t.Run("throttles a single client", func(t *testing.T) {
		guard := newAdminGuard(1, 2)
		assert.True(t, guard.allow("10.0.0.1"))
		assert.True(t, guard.allow("10.0.0.1"))
		assert.False(t, guard.allow("10.0.0.1"), "burst of 2 exhausted")
		assert.True(t, guard.allow("10.0.0.2"), "other clients are unaffected")
	})
}
