// internal/ratelimit/middleware.go
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantHeader carries the tenant identity on inbound requests.
const TenantHeader = "X-Tenant-ID"

// Middleware wraps HTTP handlers with admission control: one Check per
// request, rate-limit headers on every response, and a JSON 429 with
// Retry-After on denial.
type Middleware struct {
	limiter *Limiter
	logger  *zap.Logger
	useIETF bool
}

// NewMiddleware creates a Middleware around the limiter.
func NewMiddleware(l *Limiter, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{limiter: l, logger: logger}
}

// UseIETFDraft switches response headers from the traditional X-RateLimit-*
// names to the IETF draft RateLimit-* names.
func (m *Middleware) UseIETFDraft(use bool) {
	m.useIETF = use
}

// Handler wraps next with admission control.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantHeader)
		if tenantID == "" {
			tenantID = "anonymous"
		}

		res := m.limiter.Check(tenantID, r.URL.Path, r.Method)
		SetHeaders(w, res, m.useIETF)

		if !res.Allowed {
			m.logger.Info("rate limit exceeded",
				zap.String("request_id", uuid.NewString()),
				zap.String("tenant", tenantID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			WriteRateLimitError(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetHeaders adds rate limit headers to a response.
func SetHeaders(w http.ResponseWriter, res Result, useIETF bool) {
	limit := strconv.Itoa(res.Limit)
	remaining := strconv.Itoa(res.Remaining)
	reset := strconv.FormatInt(res.ResetAt.Unix(), 10)

	if useIETF {
		w.Header().Set("RateLimit-Limit", limit)
		w.Header().Set("RateLimit-Remaining", remaining)
		w.Header().Set("RateLimit-Reset", reset)
		return
	}
	w.Header().Set("X-RateLimit-Limit", limit)
	w.Header().Set("X-RateLimit-Remaining", remaining)
	w.Header().Set("X-RateLimit-Reset", reset)
}

// WriteRateLimitError writes the 429 response for a denied request.
func WriteRateLimitError(w http.ResponseWriter, res Result) {
	retryAfter := int(res.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := fmt.Sprintf(`{"error":"Rate limit exceeded","retry_after":%d}`, retryAfter)
	_, _ = w.Write([]byte(body))
}
