package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartenSchelker/QuotaGate/app/models"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/entitlements"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/limiter"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/subscription"
)

// fakeStore is a minimal in-memory CounterRepository for middleware tests.
type fakeStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[string]int64)}
}

func (s *fakeStore) storeKey(userID, periodType string, periodStart time.Time) string {
	return userID + "|" + periodType + "|" + periodStart.UTC().Format(time.RFC3339)
}

func (s *fakeStore) GetCount(_ context.Context, userID, periodType string, periodStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[s.storeKey(userID, periodType, periodStart)], nil
}

func (s *fakeStore) IncrementOrInsert(_ context.Context, userID, periodType string, periodStart, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.counts[s.storeKey(userID, periodType, periodStart)]++
	return nil
}

func (s *fakeStore) History(_ context.Context, _, _ string, _ int) ([]models.RateLimitCounter, error) {
	return nil, nil
}

type providerFunc func(ctx context.Context, userID string) (*subscription.Snapshot, error)

func (f providerFunc) Lookup(ctx context.Context, userID string) (*subscription.Snapshot, error) {
	return f(ctx, userID)
}

func testLimitsConfig(t *testing.T) *entitlements.Config {
	t.Helper()
	cfg, err := entitlements.NewConfig(map[string]entitlements.RateLimits{
		"none": {
			Hourly:  entitlements.Bounded(2),
			Daily:   entitlements.Bounded(5),
			Monthly: entitlements.Bounded(20),
		},
		"pro": {
			Hourly:  entitlements.Bounded(100),
			Daily:   entitlements.Unlimited(),
			Monthly: entitlements.Unlimited(),
		},
	})
	require.NoError(t, err)
	return cfg
}

func staticUser(id string) func(c *fiber.Ctx) (string, error) {
	return func(c *fiber.Ctx) (string, error) { return id, nil }
}

func newTestApp(t *testing.T, store *fakeStore, provider subscription.Provider, opts ...func(*RateLimitConfig)) *fiber.App {
	t.Helper()
	engine := limiter.NewEngine(store).WithClock(func() time.Time {
		return time.Date(2025, 6, 15, 14, 30, 45, 0, time.UTC)
	})

	cfg := RateLimitConfig{
		Provider:  provider,
		Engine:    engine,
		Limits:    testLimitsConfig(t),
		GetUserID: staticUser("user-1"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	app := fiber.New()
	app.Get("/ping", RateLimitMiddleware(cfg), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ping": "pong"})
	})
	return app
}

func noneProvider(ctx context.Context, userID string) (*subscription.Snapshot, error) {
	return subscription.None(), nil
}

func TestRateLimitAdmitsAndSetsHeaders(t *testing.T) {
	app := newTestApp(t, newFakeStore(), providerFunc(noneProvider))

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(HeaderHourlyRemaining))
	assert.Equal(t, "4", resp.Header.Get(HeaderDailyRemaining))
	assert.Equal(t, "19", resp.Header.Get(HeaderMonthlyRemaining))
}

func TestRateLimitRejectsWith429Body(t *testing.T) {
	store := newFakeStore()
	app := newTestApp(t, store, providerFunc(noneProvider))

	// Exhaust the hourly budget of 2, then expect a structured rejection.
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get(HeaderHourlyRemaining))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Success       bool             `json:"success"`
		Error         string           `json:"error"`
		Message       string           `json:"message"`
		Remaining     map[string]int64 `json:"remaining"`
		ExceededLimit string           `json:"exceededLimit"`
		Timestamp     string           `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.False(t, payload.Success)
	assert.Equal(t, "Rate limit exceeded", payload.Error)
	assert.Contains(t, payload.Message, "hourly")
	assert.Equal(t, "hourly", payload.ExceededLimit)
	assert.Equal(t, int64(0), payload.Remaining["hourly"])
	require.NotEmpty(t, payload.Timestamp)
	_, err = time.Parse(time.RFC3339, payload.Timestamp)
	assert.NoError(t, err)
}

func TestRateLimitProviderFailureFallsBackToNonePlan(t *testing.T) {
	failing := providerFunc(func(ctx context.Context, userID string) (*subscription.Snapshot, error) {
		return nil, errors.New("provider unreachable")
	})
	app := newTestApp(t, newFakeStore(), failing)

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Checked against the "none" plan, not blocked.
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(HeaderHourlyRemaining))
}

func TestRateLimitUnlimitedPeriodsOmitHeaders(t *testing.T) {
	anchor := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	pro := providerFunc(func(ctx context.Context, userID string) (*subscription.Snapshot, error) {
		return &subscription.Snapshot{Entitlements: []string{"pro"}, StartedAt: &anchor}, nil
	})
	app := newTestApp(t, newFakeStore(), pro)

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "99", resp.Header.Get(HeaderHourlyRemaining))
	assert.Empty(t, resp.Header.Get(HeaderDailyRemaining))
	assert.Empty(t, resp.Header.Get(HeaderMonthlyRemaining))
}

func TestRateLimitShouldSkipBypassesLimiting(t *testing.T) {
	store := newFakeStore()
	app := newTestApp(t, store, providerFunc(noneProvider), func(cfg *RateLimitConfig) {
		cfg.ShouldSkip = func(c *fiber.Ctx) bool { return true }
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(HeaderHourlyRemaining))
	assert.Empty(t, store.counts)
}

func TestRateLimitStoreFailureIs500(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	app := newTestApp(t, store, providerFunc(noneProvider))

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 500, resp.StatusCode)
}

func TestRateLimitUnidentifiedRequesterIs401(t *testing.T) {
	app := newTestApp(t, newFakeStore(), providerFunc(noneProvider), func(cfg *RateLimitConfig) {
		cfg.GetUserID = func(c *fiber.Ctx) (string, error) { return "", nil }
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 401, resp.StatusCode)
}
