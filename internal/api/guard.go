package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// adminGuard is a coarse per-client token bucket in front of the admin
// endpoints. It protects the config surface from runaway scripts; tenant
// traffic goes through the sliding-window limiter instead.
type adminGuard struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// maxGuardClients caps the per-client map so it cannot grow without bound.
const maxGuardClients = 10000

func newAdminGuard(rps float64, burst int) *adminGuard {
	return &adminGuard{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (g *adminGuard) allow(client string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.limiters) >= maxGuardClients {
		g.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := g.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(g.rps, g.burst)
		g.limiters[client] = limiter
	}
	return limiter.Allow()
}

func (g *adminGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			client = host
		}
		if !g.allow(client) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
