package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierCatalog(t *testing.T) {
	t.Run("contains the five built-in tiers", func(t *testing.T) {
		tiers := Tiers()
		for _, name := range []string{"free", "starter", "growth", "enterprise", "unlimited"} {
			assert.Contains(t, tiers, name)
		}
	})

	t.Run("rate fields are positive and ordered", func(t *testing.T) {
		for name, tier := range Tiers() {
			assert.Positive(t, tier.RequestsPerSecond, name)
			assert.Positive(t, tier.BurstMultiplier, name)
			assert.LessOrEqual(t, tier.RequestsPerSecond, tier.RequestsPerMinute, name)
			assert.LessOrEqual(t, tier.RequestsPerMinute, tier.RequestsPerHour, name)
		}
	})

	t.Run("burst ceiling derives from per-second rate and multiplier", func(t *testing.T) {
		tier, ok := LookupTier("growth")
		require.True(t, ok)
		assert.Equal(t, tier.RequestsPerSecond*tier.BurstMultiplier, tier.BurstLimit())
	})

	t.Run("lookup misses report false", func(t *testing.T) {
		_, ok := LookupTier("platinum")
		assert.False(t, ok)
	})

	t.Run("catalog copies are independent", func(t *testing.T) {
		tiers := Tiers()
		delete(tiers, "free")
		assert.Contains(t, Tiers(), "free")
	})
}

func TestOverrideApply(t *testing.T) {
	base := Tier{
		Name:              "growth",
		RequestsPerSecond: 50,
		RequestsPerMinute: 1500,
		RequestsPerHour:   30000,
		BurstMultiplier:   3,
	}

	t.Run("nil fields inherit from the base tier", func(t *testing.T) {
		rpm := 10
		merged := Override{RequestsPerMinute: &rpm}.apply(base)

		assert.Equal(t, 10, merged.RequestsPerMinute)
		assert.Equal(t, 50, merged.RequestsPerSecond)
		assert.Equal(t, 30000, merged.RequestsPerHour)
		assert.Equal(t, 3, merged.BurstMultiplier)
		assert.Equal(t, 150, merged.BurstLimit())
	})

	t.Run("set fields win over the base tier", func(t *testing.T) {
		rps, mult := 5, 1
		merged := Override{RequestsPerSecond: &rps, BurstMultiplier: &mult}.apply(base)

		assert.Equal(t, 5, merged.RequestsPerSecond)
		assert.Equal(t, 1, merged.BurstMultiplier)
		assert.Equal(t, 5, merged.BurstLimit())
		assert.Equal(t, 1500, merged.RequestsPerMinute)
	})

	t.Run("empty override is a no-op", func(t *testing.T) {
		assert.Equal(t, base, Override{}.apply(base))
	})
}
