package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const tokenFetchTimeout = 30 * time.Second

// TokenFetcher is the part of Client the cache needs.
type TokenFetcher interface {
	FetchAccessToken(ctx context.Context, key, secret string) (string, error)
}

// TokenCache keeps an access token for a caller-chosen lifetime. Concurrent
// refreshes share one provider call.
type TokenCache struct {
	fetcher TokenFetcher
	key     string
	secret  string
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

func NewTokenCache(fetcher TokenFetcher, key, secret string, ttl time.Duration) *TokenCache {
	return &TokenCache{
		fetcher: fetcher,
		key:     key,
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Token returns the cached token or fetches a new one. The fetch is shared
// by concurrent callers and is not bound to any single caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.RUnlock()
	if token != "" && c.now().Before(expiresAt) {
		return token, nil
	}

	ch := c.group.DoChan(c.key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()

		token, err := c.fetcher.FetchAccessToken(fetchCtx, c.key, c.secret)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &GatewayError{Op: "token", Err: errors.Join(ErrAuth, ctx.Err())}
	}
}

// Invalidate drops the cached token, e.g. after the provider rejected it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
