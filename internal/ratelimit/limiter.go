// internal/ratelimit/limiter.go
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fluxpay/gatekeeper/internal/clock"
)

const (
	// defaultCleanupInterval is how often the background sweep runs.
	defaultCleanupInterval = 5 * time.Minute
	// defaultMaxAge is how long idle history survives between sweeps.
	defaultMaxAge = 2 * time.Hour
	// defaultKey is the counter key suffix for checks without an endpoint.
	defaultKey = "default"
)

// Scope selects which of a tenant's counter keys Stats and Reset touch.
type Scope int

const (
	// ScopeDefault covers only the tenant's unscoped "default" key.
	ScopeDefault Scope = iota
	// ScopeAll aggregates or clears every key the tenant has traffic on,
	// including endpoint-specific ones.
	ScopeAll
)

// Stats is an administrative snapshot of a tenant's traffic.
type Stats struct {
	TenantID         string    `json:"tenant_id"`
	Tier             string    `json:"tier"`
	CurrentRate      float64   `json:"current_rate"`
	Limit            int       `json:"limit"`
	WindowStart      time.Time `json:"window_start"`
	RequestsInWindow int       `json:"requests_in_window"`
	Blocked          int64     `json:"blocked"`
}

// Limiter maps (tenant, endpoint, method) admission requests onto counter
// calls using per-tenant configuration, and manages tiers, overrides and
// stats. Construct one per process and share it; there is no package-level
// singleton.
type Limiter struct {
	counter Counter
	clock   clock.Clock
	logger  *zap.Logger
	metrics *limiterMetrics

	mu      sync.RWMutex
	configs map[string]TenantConfig
	blocked map[string]int64 // "blocked:{tenant}" -> denials since last reset

	cleanupInterval time.Duration
	maxAge          time.Duration
	maxEntries      int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock substitutes the time source. Tests use a VirtualClock.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithCounter substitutes the counting backend, e.g. a distributed store.
func WithCounter(c Counter) Option {
	return func(l *Limiter) { l.counter = c }
}

// WithCleanupInterval changes the background sweep cadence.
func WithCleanupInterval(d time.Duration) Option {
	return func(l *Limiter) { l.cleanupInterval = d }
}

// WithMaxEntries sets the per-key bucket cap of the default counter.
func WithMaxEntries(n int) Option {
	return func(l *Limiter) { l.maxEntries = n }
}

// New creates a Limiter and starts its background cleanup sweep. Call
// Shutdown during process teardown to stop the sweep.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		configs:         make(map[string]TenantConfig),
		blocked:         make(map[string]int64),
		cleanupInterval: defaultCleanupInterval,
		maxAge:          defaultMaxAge,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = clock.NewRealClock()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.counter == nil {
		l.counter = NewSlidingWindowCounter(l.clock, l.maxEntries)
	}
	if l.metrics != nil {
		l.metrics.trackKeys(l.counter)
	}

	go l.cleanupLoop()
	return l
}

// cleanupLoop sweeps stale history independently of request traffic.
func (l *Limiter) cleanupLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.counter.Cleanup(l.maxAge)
		case <-l.stop:
			return
		}
	}
}

// Shutdown cancels the background sweep. Safe to call more than once.
func (l *Limiter) Shutdown() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
}

// endpointKey builds the "METHOD:path" suffix, or "default" when the check
// is not scoped to an endpoint.
func endpointKey(endpoint, method string) string {
	if endpoint == "" {
		return defaultKey
	}
	if method == "" {
		method = "GET"
	}
	return method + ":" + endpoint
}

// effectiveTier resolves the tenant's tier with any endpoint override
// shallow-merged on top, without persisting a default config.
func (l *Limiter) effectiveTier(tenantID, epKey string) Tier {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cfg, ok := l.configs[tenantID]
	if !ok {
		cfg = TenantConfig{Tier: builtinTiers[DefaultTierName]}
	}
	tier := cfg.Tier
	if ov, ok := cfg.EndpointOverrides[epKey]; ok {
		tier = ov.apply(tier)
	}
	return tier
}

// Check runs admission control for one request. Denial is a value, never an
// error: over-limit traffic is the normal case this component exists for.
func (l *Limiter) Check(tenantID, endpoint, method string) Result {
	epKey := endpointKey(endpoint, method)
	tier := l.effectiveTier(tenantID, epKey)

	windows := []Window{
		{Span: time.Minute, Limit: tier.RequestsPerMinute},
		{Span: time.Hour, Limit: tier.RequestsPerHour},
	}
	burst := Window{Span: time.Second, Limit: tier.BurstLimit()}

	res := l.counter.Increment(tenantID+":"+epKey, windows, burst)

	if l.metrics != nil {
		l.metrics.observe(tenantID, res.Allowed)
	}
	if !res.Allowed {
		l.mu.Lock()
		l.blocked["blocked:"+tenantID]++
		l.mu.Unlock()
		l.logger.Debug("request denied",
			zap.String("tenant", tenantID),
			zap.String("endpoint", epKey),
			zap.Int("limit", res.Limit),
			zap.Duration("retry_after", res.RetryAfter))
	}
	return res
}

// GetConfig returns a copy of the tenant's configuration, defaulting to the
// starter tier. The copy is detached: mutate it and pass it back through
// SetConfig to commit.
func (l *Limiter) GetConfig(tenantID string) TenantConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cfg, ok := l.configs[tenantID]; ok {
		return cfg.clone()
	}
	return TenantConfig{Tier: builtinTiers[DefaultTierName]}
}

// SetConfig overwrites the tenant's configuration. Last writer wins.
func (l *Limiter) SetConfig(tenantID string, cfg TenantConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[tenantID] = cfg.clone()
}

// SetTier assigns a catalog tier to the tenant, preserving any endpoint
// overrides. Unknown names fail loudly; there is no silent fallback.
func (l *Limiter) SetTier(tenantID, tierName string) error {
	tier, ok := LookupTier(tierName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := l.configs[tenantID]
	cfg.Tier = tier
	l.configs[tenantID] = cfg
	return nil
}

// SetEndpointOverride replaces the tenant's override for one endpoint. The
// override is stored whole, not merged with a previous one for the same key.
func (l *Limiter) SetEndpointOverride(tenantID, endpoint, method string, ov Override) {
	epKey := endpointKey(endpoint, method)

	l.mu.Lock()
	defer l.mu.Unlock()
	cfg, ok := l.configs[tenantID]
	if !ok {
		cfg = TenantConfig{Tier: builtinTiers[DefaultTierName]}
	}
	if cfg.EndpointOverrides == nil {
		cfg.EndpointOverrides = make(map[string]Override)
	}
	cfg.EndpointOverrides[epKey] = ov
	l.configs[tenantID] = cfg
}

// Stats reports the tenant's traffic over the trailing minute. The scope is
// explicit: ScopeDefault mirrors historical behaviour (unscoped traffic
// only), ScopeAll also covers endpoint-specific keys.
func (l *Limiter) Stats(tenantID string, scope Scope) Stats {
	var ks KeyStats
	if scope == ScopeAll {
		ks = l.counter.StatsPrefix(tenantID+":", time.Minute)
	} else {
		ks = l.counter.Stats(tenantID+":"+defaultKey, time.Minute)
	}

	l.mu.RLock()
	blocked := l.blocked["blocked:"+tenantID]
	l.mu.RUnlock()

	tier := l.GetConfig(tenantID).Tier
	return Stats{
		TenantID:         tenantID,
		Tier:             tier.Name,
		CurrentRate:      ks.RatePerSecond,
		Limit:            tier.RequestsPerMinute,
		WindowStart:      ks.WindowStart,
		RequestsInWindow: ks.Requests,
		Blocked:          blocked,
	}
}

// Reset clears the tenant's counter history for the scope and zeroes its
// blocked counter. Idempotent.
func (l *Limiter) Reset(tenantID string, scope Scope) {
	if scope == ScopeAll {
		l.counter.ClearPrefix(tenantID + ":")
	} else {
		l.counter.Clear(tenantID + ":" + defaultKey)
	}

	l.mu.Lock()
	delete(l.blocked, "blocked:"+tenantID)
	l.mu.Unlock()
}

// Tiers returns a copy of the built-in tier catalog.
func (l *Limiter) Tiers() map[string]Tier {
	return Tiers()
}
