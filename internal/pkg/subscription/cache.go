package subscription

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/MartenSchelker/QuotaGate/internal/pkg/cache"
)

const snapshotKeyPrefix = "quotagate:snapshot:"

// CachedProvider wraps a Provider with a short-lived cache so hot users do
// not hammer the subscriber API on every request. Cache failures are treated
// as misses; the counter path never goes through here.
type CachedProvider struct {
	Inner Provider
	TTL   time.Duration
}

// NewCachedProvider caches snapshots from inner for ttl.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{Inner: inner, TTL: ttl}
}

// Lookup serves a cached snapshot when available, otherwise asks the inner
// provider and stores the result best-effort.
func (p *CachedProvider) Lookup(ctx context.Context, userID string) (*Snapshot, error) {
	key := snapshotKeyPrefix + userID

	if raw, err := cache.Get(key); err == nil && raw != "" {
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return &snap, nil
		}
	}

	snap, err := p.Inner.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(snap); err == nil {
		if err := cache.Set(key, string(raw), p.TTL); err != nil {
			log.Printf("subscription cache: failed to store snapshot for user %s: %v", userID, err)
		}
	}
	return snap, nil
}
