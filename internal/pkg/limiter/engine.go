package limiter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MartenSchelker/QuotaGate/app/repository"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/entitlements"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/period"
)

// Remaining carries the post-decision headroom per window. A nil field means
// the corresponding limit is unlimited and is omitted from responses.
type Remaining struct {
	Hourly  *int64 `json:"hourly,omitempty"`
	Daily   *int64 `json:"daily,omitempty"`
	Monthly *int64 `json:"monthly,omitempty"`
}

// Decision is the verdict for one request.
type Decision struct {
	Allowed       bool
	StatusCode    int
	Limits        entitlements.RateLimits
	Remaining     Remaining
	ExceededLimit period.Type // empty unless Allowed is false
}

// Engine composes the period calculator, the effective limits and the counter
// store into the admission check. It holds no per-user state; every check
// reads the store fresh.
type Engine struct {
	store repository.CounterRepository
	now   func() time.Time
}

// NewEngine creates an engine on top of a counter store.
func NewEngine(store repository.CounterRepository) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock overrides the engine clock. Tests use this for deterministic
// period boundaries.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type windowState struct {
	typ   period.Type
	limit entitlements.Limit
	start time.Time
	count int64
}

// CheckAndIncrement runs the admission check for one request and, when the
// request is admitted, advances the counters of every bounded window.
// Unlimited windows are never written. Rejections leave all counters
// untouched.
func (e *Engine) CheckAndIncrement(ctx context.Context, userID string, limits entitlements.RateLimits, subscriptionStartedAt *time.Time) (*Decision, error) {
	return e.check(ctx, userID, limits, subscriptionStartedAt, true)
}

// CheckOnly evaluates admission without advancing any counter.
func (e *Engine) CheckOnly(ctx context.Context, userID string, limits entitlements.RateLimits, subscriptionStartedAt *time.Time) (*Decision, error) {
	return e.check(ctx, userID, limits, subscriptionStartedAt, false)
}

func (e *Engine) check(ctx context.Context, userID string, limits entitlements.RateLimits, anchor *time.Time, increment bool) (*Decision, error) {
	now := e.now().UTC()

	// Windows are always evaluated hourly, daily, monthly so the tightest
	// limit trips first and clients see a stable exceeded period.
	windows := []*windowState{
		{typ: period.Hourly, limit: limits.Hourly, start: period.CurrentHourStart(now)},
		{typ: period.Daily, limit: limits.Daily, start: period.CurrentDayStart(now)},
		{typ: period.Monthly, limit: limits.Monthly, start: period.SubscriptionMonthStart(anchor, now)},
	}

	// Read all three counters against the same logical now.
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range windows {
		g.Go(func() error {
			count, err := e.store.GetCount(gctx, userID, string(w.typ), w.start)
			if err != nil {
				return fmt.Errorf("read %s counter: %w", w.typ, err)
			}
			w.count = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decision := &Decision{Limits: limits}

	for _, w := range windows {
		bound, ok := w.limit.Value()
		if !ok {
			continue
		}
		if w.count >= bound {
			decision.Allowed = false
			decision.StatusCode = 429
			decision.ExceededLimit = w.typ
			decision.Remaining = remainingFrom(windows, 0)
			return decision, nil
		}
	}

	decision.Allowed = true
	decision.StatusCode = 200

	if increment {
		g, gctx := errgroup.WithContext(ctx)
		for _, w := range windows {
			if w.limit.IsUnlimited() {
				continue
			}
			g.Go(func() error {
				if err := e.store.IncrementOrInsert(gctx, userID, string(w.typ), w.start, now); err != nil {
					return fmt.Errorf("increment %s counter: %w", w.typ, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		decision.Remaining = remainingFrom(windows, 1)
	} else {
		decision.Remaining = remainingFrom(windows, 0)
	}

	return decision, nil
}

// remainingFrom derives per-window headroom from pre-read counts plus the
// number of increments this request contributed (0 or 1).
func remainingFrom(windows []*windowState, consumed int64) Remaining {
	var rem Remaining
	for _, w := range windows {
		bound, ok := w.limit.Value()
		if !ok {
			continue
		}
		left := bound - (w.count + consumed)
		if left < 0 {
			left = 0
		}
		v := left
		switch w.typ {
		case period.Hourly:
			rem.Hourly = &v
		case period.Daily:
			rem.Daily = &v
		case period.Monthly:
			rem.Monthly = &v
		}
	}
	return rem
}

// HistoryEntry is one past (or current) window with its exclusive end.
type HistoryEntry struct {
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	RequestCount int64     `json:"request_count"`
}

// History returns the most recent counter windows for one period type, most
// recent first. The anchor is needed to derive monthly window ends.
func (e *Engine) History(ctx context.Context, userID string, typ period.Type, subscriptionStartedAt *time.Time, limit int) ([]HistoryEntry, error) {
	rows, err := e.store.History(ctx, userID, string(typ), limit)
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", typ, err)
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, HistoryEntry{
			PeriodStart:  row.PeriodStart.UTC(),
			PeriodEnd:    period.End(typ, subscriptionStartedAt, row.PeriodStart.UTC()),
			RequestCount: row.RequestCount,
		})
	}
	return entries, nil
}
