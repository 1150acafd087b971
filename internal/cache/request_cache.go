// Package cache implements the rate-limit-aware response cache that sits in
// front of every Sorare GraphQL call.
//
// Entries live in one of two regimes. A successful response is served for
// the normal TTL. A rate-limited response is remembered for the much longer
// cooldown TTL, during which identical requests fail locally with
// domain.ErrRateLimited without reaching the upstream.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"
	"sorare-coach/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs one upstream GraphQL call.
type Fetcher interface {
	Query(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

type Request struct {
	Query     string
	Variables map[string]any

	// MaxAttempts bounds upstream calls for non rate-limit failures.
	// Zero uses the cache default (one attempt, no retry).
	MaxAttempts int
}

type entry struct {
	data        json.RawMessage
	timestamp   time.Time
	isRateLimit bool
}

type RequestCache struct {
	upstream Fetcher
	logger   zerolog.Logger

	ttl             time.Duration
	rateLimitTTL    time.Duration
	backoff         time.Duration
	defaultAttempts int
	coalesce        bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
}

type Option func(*RequestCache)

func WithTTL(d time.Duration) Option {
	return func(c *RequestCache) { c.ttl = d }
}

func WithRateLimitTTL(d time.Duration) Option {
	return func(c *RequestCache) { c.rateLimitTTL = d }
}

func WithBackoff(d time.Duration) Option {
	return func(c *RequestCache) { c.backoff = d }
}

func WithDefaultAttempts(n int) Option {
	return func(c *RequestCache) {
		if n > 0 {
			c.defaultAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *RequestCache) { c.now = now }
}

// WithSleep replaces the backoff wait, mainly so tests do not sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *RequestCache) { c.sleep = sleep }
}

// WithCoalescing makes concurrent misses for the same key share one upstream
// call. Off by default: without it two callers racing on a cold key both hit
// the upstream.
func WithCoalescing(enabled bool) Option {
	return func(c *RequestCache) { c.coalesce = enabled }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *RequestCache) { c.logger = logger }
}

func New(upstream Fetcher, opts ...Option) *RequestCache {
	c := &RequestCache{
		upstream:        upstream,
		logger:          zerolog.Nop(),
		ttl:             constants.UpstreamCacheTTL,
		rateLimitTTL:    constants.RateLimitCacheTTL,
		backoff:         constants.UpstreamRetryDelay,
		defaultAttempts: 1,
		now:             time.Now,
		sleep:           sleepContext,
		entries:         make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key hashes the exact serialized (query, variables) pair. Map keys are
// serialized in sorted order, so equal variable sets produce equal keys.
func Key(query string, variables map[string]any) (string, error) {
	raw, err := json.Marshal(struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}{Query: query, Variables: variables})
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Execute returns the cached response for req when one is fresh, fails fast
// while req's key is cooling down from a rate limit, and otherwise calls the
// upstream with up to MaxAttempts attempts.
func (c *RequestCache) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	key, err := Key(req.Query, req.Variables)
	if err != nil {
		return nil, err
	}

	if data, hit, err := c.lookup(key); hit {
		return data, err
	}
	metrics.CacheMisses.Inc()

	if !c.coalesce {
		return c.fetch(ctx, key, req)
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetch(ctx, key, req)
	})
	if shared {
		c.logger.Debug().Str("key", key[:12]).Msg("coalesced upstream request")
	}
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// lookup reports hit=true when the request was answered from the cache,
// either with data or with a rate-limit rejection.
func (c *RequestCache) lookup(key string) (json.RawMessage, bool, error) {
	c.mu.Lock()
	e, exists := c.entries[key]
	c.mu.Unlock()
	if !exists {
		return nil, false, nil
	}

	age := c.now().Sub(e.timestamp)
	switch {
	case e.isRateLimit && age < c.rateLimitTTL:
		metrics.CacheRateLimitShortCircuits.Inc()
		remaining := c.rateLimitTTL - age
		c.logger.Debug().Str("key", key[:12]).Dur("cooldown_remaining", remaining).Msg("rate limit cooldown active, skipping upstream")
		return nil, true, domain.NewRateLimitedError(remaining.Round(time.Second), "rate limit cooldown active")
	case !e.isRateLimit && e.data != nil && age < c.ttl:
		metrics.CacheHits.Inc()
		return e.data, true, nil
	}
	// expired, or an entry without data: both are plain misses
	return nil, false, nil
}

func (c *RequestCache) fetch(ctx context.Context, key string, req Request) (json.RawMessage, error) {
	attempts := req.MaxAttempts
	if attempts <= 0 {
		attempts = c.defaultAttempts
	}

	for attempt := 1; ; attempt++ {
		data, err := c.upstream.Query(ctx, req.Query, req.Variables)
		if err == nil {
			c.store(key, entry{data: data, timestamp: c.now()})
			return data, nil
		}

		if errors.Is(err, domain.ErrRateLimited) {
			c.store(key, entry{isRateLimit: true, timestamp: c.now()})
			c.logger.Warn().Err(err).Str("key", key[:12]).Dur("cooldown", c.rateLimitTTL).Msg("upstream rate limited, entering cooldown")
			return nil, err
		}

		if attempt >= attempts || !domain.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", c.backoff).
			Msg("upstream request failed, retrying")
		metrics.CacheRetries.Inc()

		if sleepErr := c.sleep(ctx, c.backoff); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

func (c *RequestCache) store(key string, e entry) {
	c.mu.Lock()
	c.entries[key] = e
	n := len(c.entries)
	c.mu.Unlock()
	metrics.CacheEntries.Set(float64(n))
}

// Sweep drops entries past their regime's TTL and returns how many were
// removed.
func (c *RequestCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		ttl := c.ttl
		if e.isRateLimit {
			ttl = c.rateLimitTTL
		}
		if now.Sub(e.timestamp) >= ttl {
			delete(c.entries, key)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.CacheEntries.Set(float64(n))
	return removed
}

// SweepEvery runs Sweep on interval until ctx is done.
func (c *RequestCache) SweepEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("swept expired cache entries")
			}
		}
	}
}

func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
