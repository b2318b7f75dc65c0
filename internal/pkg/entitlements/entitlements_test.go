package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig(map[string]RateLimits{
		"none":    {Hourly: Bounded(5), Daily: Bounded(20), Monthly: Bounded(100)},
		"starter": {Hourly: Bounded(10), Daily: Bounded(50), Monthly: Bounded(500)},
		"pro":     {Hourly: Bounded(100), Daily: Unlimited(), Monthly: Unlimited()},
	})
	require.NoError(t, err)
	return cfg
}

func TestNewConfigRequiresNone(t *testing.T) {
	_, err := NewConfig(map[string]RateLimits{
		"pro": {Hourly: Bounded(100)},
	})
	require.Error(t, err)
}

func TestResolveEmptySetFallsBackToNone(t *testing.T) {
	cfg := testConfig(t)

	got := cfg.Resolve(nil)
	assert.Equal(t, cfg.None, got)
}

func TestResolveSingleEntitlement(t *testing.T) {
	cfg := testConfig(t)

	got := cfg.Resolve([]string{"starter"})
	assert.Equal(t, cfg.Plans["starter"], got)
}

func TestResolveUnknownEntitlementFallsBackToNone(t *testing.T) {
	cfg := testConfig(t)

	assert.Equal(t, cfg.None, cfg.Resolve([]string{"enterprise"}))
	// Unknown names in a multi-entitlement set join against the none plan.
	assert.Equal(t, cfg.Plans["starter"].Join(cfg.None), cfg.Resolve([]string{"starter", "enterprise"}))
}

func TestResolveUpperBoundJoin(t *testing.T) {
	cfg := testConfig(t)

	got := cfg.Resolve([]string{"starter", "pro"})

	hourly, ok := got.Hourly.Value()
	require.True(t, ok)
	assert.Equal(t, int64(100), hourly)
	assert.True(t, got.Daily.IsUnlimited())
	assert.True(t, got.Monthly.IsUnlimited())
}

func TestJoinUnlimitedDominates(t *testing.T) {
	a := RateLimits{Hourly: Bounded(1), Daily: Unlimited(), Monthly: Bounded(10)}
	b := RateLimits{Hourly: Bounded(3), Daily: Bounded(999), Monthly: Bounded(7)}

	joined := a.Join(b)

	h, _ := joined.Hourly.Value()
	m, _ := joined.Monthly.Value()
	assert.Equal(t, int64(3), h)
	assert.True(t, joined.Daily.IsUnlimited())
	assert.Equal(t, int64(10), m)
}

func TestBoundedZeroIsNotUnlimited(t *testing.T) {
	zero := Bounded(0)
	assert.False(t, zero.IsUnlimited())

	n, ok := zero.Value()
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"none": {"hourly": 2, "daily": 5, "monthly": 20},
		"pro": {"hourly": 100, "daily": null}
	}`))
	require.NoError(t, err)

	h, ok := cfg.None.Hourly.Value()
	require.True(t, ok)
	assert.Equal(t, int64(2), h)

	pro := cfg.Lookup("pro")
	assert.True(t, pro.Daily.IsUnlimited())
	assert.True(t, pro.Monthly.IsUnlimited())
}

func TestParseConfigRejectsNegativeLimits(t *testing.T) {
	_, err := ParseConfig([]byte(`{"none": {"hourly": -1}}`))
	require.Error(t, err)
}

func TestParseConfigRequiresNone(t *testing.T) {
	_, err := ParseConfig([]byte(`{"pro": {"hourly": 1}}`))
	require.Error(t, err)
}
