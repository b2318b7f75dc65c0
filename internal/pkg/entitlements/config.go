package entitlements

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// rawLimits is the wire form of a plan entry in the config file. Absent
// fields mean unlimited.
type rawLimits struct {
	Hourly  *int64 `json:"hourly" validate:"omitempty,gte=0"`
	Daily   *int64 `json:"daily" validate:"omitempty,gte=0"`
	Monthly *int64 `json:"monthly" validate:"omitempty,gte=0"`
}

func (r rawLimits) toLimits() RateLimits {
	return RateLimits{
		Hourly:  toLimit(r.Hourly),
		Daily:   toLimit(r.Daily),
		Monthly: toLimit(r.Monthly),
	}
}

func toLimit(n *int64) Limit {
	if n == nil {
		return Unlimited()
	}
	return Bounded(*n)
}

// ParseConfig decodes and validates a JSON plan table of the form
// {"none": {"hourly": 10, "daily": 100, "monthly": 1000}, "pro": {...}}.
func ParseConfig(data []byte) (*Config, error) {
	var raw map[string]rawLimits
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid rate limits config: %w", err)
	}

	v := validator.New()
	plans := make(map[string]RateLimits, len(raw))
	for name, entry := range raw {
		if err := v.Struct(entry); err != nil {
			return nil, fmt.Errorf("invalid rate limits for plan %q: %w", name, err)
		}
		plans[name] = entry.toLimits()
	}

	return NewConfig(plans)
}

// LoadConfigFile reads a plan table from disk. The missing "none" plan is a
// startup failure, never a silent fallback.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limits config: %w", err)
	}
	return ParseConfig(data)
}
