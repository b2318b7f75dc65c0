package entitlements

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlanNone is the reserved fallback plan applied to users without any active
// entitlement and to unknown entitlement names.
const PlanNone = "none"

// Limit is an optional non-negative request budget. The zero value is
// Unlimited; a bounded limit of zero is valid and admits nothing.
type Limit struct {
	bounded bool
	n       int64
}

// Unlimited returns the absent limit ("no ceiling").
func Unlimited() Limit {
	return Limit{}
}

// Bounded returns a limit of n requests per period.
func Bounded(n int64) Limit {
	return Limit{bounded: true, n: n}
}

// IsUnlimited reports whether no ceiling applies.
func (l Limit) IsUnlimited() bool {
	return !l.bounded
}

// Value returns the numeric bound and whether one is present.
func (l Limit) Value() (int64, bool) {
	return l.n, l.bounded
}

func (l Limit) String() string {
	if !l.bounded {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// join is the upper-bound combination of two limits: unlimited dominates,
// bounded values combine by max.
func (l Limit) join(other Limit) Limit {
	if !l.bounded || !other.bounded {
		return Unlimited()
	}
	if other.n > l.n {
		return other
	}
	return l
}

// MarshalJSON encodes a bounded limit as its number and unlimited as null.
func (l Limit) MarshalJSON() ([]byte, error) {
	if !l.bounded {
		return []byte("null"), nil
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON accepts a non-negative number or null/absent for unlimited.
func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", n)
	}
	*l = Bounded(n)
	return nil
}

// RateLimits is the per-plan budget triple for the three concurrent windows.
type RateLimits struct {
	Hourly  Limit `json:"hourly"`
	Daily   Limit `json:"daily"`
	Monthly Limit `json:"monthly"`
}

// Join combines two budget triples field-wise with the upper-bound rule.
func (r RateLimits) Join(other RateLimits) RateLimits {
	return RateLimits{
		Hourly:  r.Hourly.join(other.Hourly),
		Daily:   r.Daily.join(other.Daily),
		Monthly: r.Monthly.join(other.Monthly),
	}
}

// Config maps entitlement names to budgets. The "none" fallback is a separate
// required field so a config without it cannot be constructed.
type Config struct {
	None  RateLimits
	Plans map[string]RateLimits
}

// NewConfig builds a Config from a raw plan table. The table must carry the
// reserved "none" key.
func NewConfig(plans map[string]RateLimits) (*Config, error) {
	none, ok := plans[PlanNone]
	if !ok {
		return nil, fmt.Errorf("rate limits config is missing the required %q plan", PlanNone)
	}

	others := make(map[string]RateLimits, len(plans)-1)
	for name, limits := range plans {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == PlanNone {
			continue
		}
		others[name] = limits
	}
	return &Config{None: none, Plans: others}, nil
}

// Lookup returns the budgets for a single entitlement name, falling back to
// the "none" plan for unknown names.
func (c *Config) Lookup(name string) RateLimits {
	if limits, ok := c.Plans[strings.ToLower(strings.TrimSpace(name))]; ok {
		return limits
	}
	return c.None
}

// Resolve maps a set of active entitlement names to the effective budgets.
// An empty set resolves to the "none" plan; multiple entitlements combine by
// the upper-bound join so a user holding two tiers keeps the benefit of both.
func (c *Config) Resolve(names []string) RateLimits {
	if len(names) == 0 {
		return c.None
	}

	effective := c.Lookup(names[0])
	for _, name := range names[1:] {
		effective = effective.Join(c.Lookup(name))
	}
	return effective
}
