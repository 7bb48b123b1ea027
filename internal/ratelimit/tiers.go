// internal/ratelimit/tiers.go
package ratelimit

// Tier is a named bundle of rate ceilings. The burst ceiling for a tier is
// RequestsPerSecond * BurstMultiplier, evaluated over a fixed one-second
// sub-window on top of the primary sliding windows.
type Tier struct {
	Name              string `json:"name"`
	RequestsPerSecond int    `json:"requests_per_second"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	RequestsPerHour   int    `json:"requests_per_hour"`
	BurstMultiplier   int    `json:"burst_multiplier"`
}

// BurstLimit returns the tier's one-second burst ceiling.
func (t Tier) BurstLimit() int {
	return t.RequestsPerSecond * t.BurstMultiplier
}

// DefaultTierName is assigned to tenants that have never been configured.
const DefaultTierName = "starter"

// builtinTiers is the static catalog. All rate fields are positive and
// ordered rps <= rpm <= rph.
var builtinTiers = map[string]Tier{
	"free": {
		Name:              "free",
		RequestsPerSecond: 2,
		RequestsPerMinute: 30,
		RequestsPerHour:   500,
		BurstMultiplier:   2,
	},
	"starter": {
		Name:              "starter",
		RequestsPerSecond: 10,
		RequestsPerMinute: 300,
		RequestsPerHour:   5000,
		BurstMultiplier:   2,
	},
	"growth": {
		Name:              "growth",
		RequestsPerSecond: 50,
		RequestsPerMinute: 1500,
		RequestsPerHour:   30000,
		BurstMultiplier:   3,
	},
	"enterprise": {
		Name:              "enterprise",
		RequestsPerSecond: 200,
		RequestsPerMinute: 6000,
		RequestsPerHour:   120000,
		BurstMultiplier:   4,
	},
	"unlimited": {
		Name:              "unlimited",
		RequestsPerSecond: 10000,
		RequestsPerMinute: 600000,
		RequestsPerHour:   36000000,
		BurstMultiplier:   5,
	},
}

// LookupTier returns the built-in tier with the given name.
func LookupTier(name string) (Tier, bool) {
	t, ok := builtinTiers[name]
	return t, ok
}

// Tiers returns a copy of the built-in tier catalog.
func Tiers() map[string]Tier {
	out := make(map[string]Tier, len(builtinTiers))
	for name, tier := range builtinTiers {
		out[name] = tier
	}
	return out
}
