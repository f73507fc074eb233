package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/patrickmn/go-cache"
)

// forcedRefreshInterval bounds how often an unknown kid may trigger a refetch.
const forcedRefreshInterval = time.Minute

// KeySetCache fetches an issuer's published signing keys and caches them as
// a keyfunc, keyed by issuer. A zero TTL keeps entries for the lifetime of
// the cache.
type KeySetCache struct {
	client *http.Client
	store  *cache.Cache
}

func NewKeySetCache(client *http.Client, ttl time.Duration) *KeySetCache {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	exp, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		exp, cleanup = ttl, 2*ttl
	}
	return &KeySetCache{client: client, store: cache.New(exp, cleanup)}
}

// Keys returns the cached key set for issuer, fetching it from url on a miss.
func (c *KeySetCache) Keys(ctx context.Context, issuer, url string) (keyfunc.Keyfunc, error) {
	if v, ok := c.store.Get(issuer); ok {
		return v.(keyfunc.Keyfunc), nil
	}
	return c.fetchAndStore(ctx, issuer, url)
}

// Refresh refetches issuer's key set unless it was force-refreshed recently.
// The boolean reports whether a fetch happened.
func (c *KeySetCache) Refresh(ctx context.Context, issuer, url string) (keyfunc.Keyfunc, bool, error) {
	if err := c.store.Add("refresh:"+issuer, true, forcedRefreshInterval); err != nil {
		kf, err := c.Keys(ctx, issuer, url)
		return kf, false, err
	}
	kf, err := c.fetchAndStore(ctx, issuer, url)
	return kf, true, err
}

func (c *KeySetCache) fetchAndStore(ctx context.Context, issuer, url string) (keyfunc.Keyfunc, error) {
	kf, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.store.Set(issuer, kf, cache.DefaultExpiration)
	return kf, nil
}

func (c *KeySetCache) fetch(ctx context.Context, url string) (keyfunc.Keyfunc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build key set request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch key set: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}
	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(body))
	if err != nil {
		return nil, fmt.Errorf("parse key set: %w", err)
	}
	return kf, nil
}
