package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// limiterMetrics exposes admission decisions to Prometheus. Collectors are
// registered on an injected registerer so tests can use isolated registries.
type limiterMetrics struct {
	reg       prometheus.Registerer
	decisions *prometheus.CounterVec
	denials   *prometheus.CounterVec
}

// WithMetrics registers the limiter's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Limiter) { l.metrics = newLimiterMetrics(reg) }
}

func newLimiterMetrics(reg prometheus.Registerer) *limiterMetrics {
	m := &limiterMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"decision"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Name:      "denials_total",
			Help:      "Denied requests by tenant.",
		}, []string{"tenant"}),
	}
	reg.MustRegister(m.decisions, m.denials)
	m.reg = reg
	return m
}

func (m *limiterMetrics) observe(tenantID string, allowed bool) {
	if allowed {
		m.decisions.WithLabelValues("allowed").Inc()
		return
	}
	m.decisions.WithLabelValues("denied").Inc()
	m.denials.WithLabelValues(tenantID).Inc()
}

// trackKeys exports the number of live counter keys as a gauge.
func (m *limiterMetrics) trackKeys(c Counter) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gatekeeper",
		Name:      "tracked_keys",
		Help:      "Counter keys currently holding window history.",
	}, func() float64 { return float64(c.Len()) }))
}
