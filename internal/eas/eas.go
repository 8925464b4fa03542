// Package eas computes the earned autonomy score: the PERMIT ratio over a
// sliding window of audit entries.
package eas

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/sentra-ai/sna/internal/model"
)

// DefaultWindow is the trailing period over which the score is computed.
const DefaultWindow = 30 * 24 * time.Hour

// cacheTTL bounds how long a cached score may be served without a
// recompute. Appends invalidate the cache immediately; the TTL covers the
// other staleness source, entries aging out of the sliding window.
const cacheTTL = 30 * time.Second

// Store provides the verdict counts the score is derived from.
type Store interface {
	CountByVerdictSince(ctx context.Context, since time.Time) (map[model.Verdict]int, error)
}

// Calculator caches the current score and recomputes it on demand. The
// cache is invalidated whenever an audit entry is appended, so the score
// reflects the verdict just written by the next read. Concurrent reads of
// a stale cache share one recomputation.
type Calculator struct {
	store  Store
	window time.Duration
	now    func() time.Time
	gauge  prometheus.Gauge

	group singleflight.Group

	mu       sync.RWMutex
	cached   float64
	cachedAt time.Time
	valid    bool
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithWindow overrides the sliding window length.
func WithWindow(w time.Duration) Option {
	return func(c *Calculator) {
		if w > 0 {
			c.window = w
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithGauge publishes the score to a Prometheus gauge on every recompute.
func WithGauge(g prometheus.Gauge) Option {
	return func(c *Calculator) { c.gauge = g }
}

// New creates a Calculator over the given store.
func New(store Store, opts ...Option) *Calculator {
	c := &Calculator{
		store:  store,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the score, recomputing it if the cache is stale.
// An empty window yields 0.0: no history means no earned autonomy.
func (c *Calculator) Current(ctx context.Context) (float64, error) {
	c.mu.RLock()
	if c.valid && c.now().Sub(c.cachedAt) < cacheTTL {
		score := c.cached
		c.mu.RUnlock()
		return score, nil
	}
	c.mu.RUnlock()

	return c.Recompute(ctx)
}

// Recompute computes a fresh score regardless of cache state and caches it
// for later reads. Concurrent calls share one computation, so repeated
// invocation is safe.
func (c *Calculator) Recompute(ctx context.Context) (float64, error) {
	v, err, _ := c.group.Do("eas", func() (any, error) {
		return c.recompute(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Invalidate marks the cached score stale. Called after every audit append.
func (c *Calculator) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func (c *Calculator) recompute(ctx context.Context) (float64, error) {
	since := c.now().Add(-c.window)
	counts, err := c.store.CountByVerdictSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("eas: recompute: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	score := 0.0
	if total > 0 {
		score = float64(counts[model.VerdictPermit]) / float64(total)
	}

	c.mu.Lock()
	c.cached = score
	c.cachedAt = c.now()
	c.valid = true
	c.mu.Unlock()

	if c.gauge != nil {
		c.gauge.Set(score)
	}
	return score, nil
}
