// internal/ratelimit/config.go
package ratelimit

// Override replaces selected fields of a tenant's base tier for one
// METHOD:path endpoint. Nil fields inherit from the base tier, so overriding
// RequestsPerMinute alone leaves the burst ceiling computed from the base
// tier's RequestsPerSecond and BurstMultiplier.
type Override struct {
	RequestsPerSecond *int `json:"requests_per_second,omitempty"`
	RequestsPerMinute *int `json:"requests_per_minute,omitempty"`
	RequestsPerHour   *int `json:"requests_per_hour,omitempty"`
	BurstMultiplier   *int `json:"burst_multiplier,omitempty"`
}

// apply merges the override onto base, field by field.
func (o Override) apply(base Tier) Tier {
	if o.RequestsPerSecond != nil {
		base.RequestsPerSecond = *o.RequestsPerSecond
	}
	if o.RequestsPerMinute != nil {
		base.RequestsPerMinute = *o.RequestsPerMinute
	}
	if o.RequestsPerHour != nil {
		base.RequestsPerHour = *o.RequestsPerHour
	}
	if o.BurstMultiplier != nil {
		base.BurstMultiplier = *o.BurstMultiplier
	}
	return base
}

// TenantConfig is one tenant's admission policy: a base tier plus optional
// per-endpoint overrides keyed "METHOD:path". Instances handed out by
// GetConfig are copies; changes only take effect through SetConfig, SetTier
// or SetEndpointOverride.
type TenantConfig struct {
	Tier              Tier                `json:"tier"`
	EndpointOverrides map[string]Override `json:"endpoint_overrides,omitempty"`
}

// clone returns a deep copy so callers can never alias the limiter's state.
func (c TenantConfig) clone() TenantConfig {
	out := TenantConfig{Tier: c.Tier}
	if c.EndpointOverrides != nil {
		out.EndpointOverrides = make(map[string]Override, len(c.EndpointOverrides))
		for k, v := range c.EndpointOverrides {
			out.EndpointOverrides[k] = v
		}
	}
	return out
}
