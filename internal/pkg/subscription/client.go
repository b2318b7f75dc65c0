package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MartenSchelker/QuotaGate/internal/pkg/env"
)

const defaultProviderAPIBaseURL = "https://api.purchases.example.com/v1"

// Client talks to the hosted subscriber API. It is the only component that
// understands the provider's wire format; everything downstream sees
// Snapshot values.
type Client struct {
	APIKey     string
	APIBaseURL string

	// TestMode keeps sandbox purchases; production traffic filters them out.
	TestMode bool

	HTTPClient *http.Client
}

// NewClientFromEnv builds a provider client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("SUBSCRIPTION_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("SUBSCRIPTION_API_BASE_URL", defaultProviderAPIBaseURL)),
		TestMode:   env.GetEnv("SUBSCRIPTION_TEST_MODE", "false") == "true",
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type rawEntitlement struct {
	PurchaseDate time.Time  `json:"purchase_date"`
	ExpiresDate  *time.Time `json:"expires_date"`
	IsSandbox    bool       `json:"is_sandbox"`
}

type rawSubscriber struct {
	Subscriber struct {
		Entitlements map[string]rawEntitlement `json:"entitlements"`
	} `json:"subscriber"`
}

// Lookup fetches the subscriber record and reduces it to a Snapshot. Expired
// entitlements are dropped; sandbox entitlements are dropped unless TestMode
// is set. A 404 from the provider means "user unknown" and yields the None
// snapshot.
func (c *Client) Lookup(ctx context.Context, userID string) (*Snapshot, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("SUBSCRIPTION_API_KEY is not configured")
	}

	u, err := url.Parse(strings.TrimRight(c.APIBaseURL, "/") + "/subscribers/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		// Unknown subscribers are regular free users.
		return None(), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("subscriber lookup failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw rawSubscriber
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("subscriber lookup returned invalid payload: %w", err)
	}

	return c.reduce(raw, time.Now().UTC()), nil
}

func (c *Client) reduce(raw rawSubscriber, now time.Time) *Snapshot {
	names := make([]string, 0, len(raw.Subscriber.Entitlements))
	var earliest *time.Time

	for name, ent := range raw.Subscriber.Entitlements {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if ent.ExpiresDate != nil && !ent.ExpiresDate.After(now) {
			continue
		}
		if ent.IsSandbox && !c.TestMode {
			continue
		}

		names = append(names, name)
		purchased := ent.PurchaseDate.UTC()
		if earliest == nil || purchased.Before(*earliest) {
			earliest = &purchased
		}
	}

	if len(names) == 0 {
		return None()
	}
	sort.Strings(names)
	return &Snapshot{Entitlements: names, StartedAt: earliest}
}
