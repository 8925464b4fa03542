package eas

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-ai/sna/internal/model"
)

type fakeStore struct {
	counts map[model.Verdict]int
	err    error
	calls  atomic.Int64
	since  time.Time
}

func (s *fakeStore) CountByVerdictSince(_ context.Context, since time.Time) (map[model.Verdict]int, error) {
	s.calls.Add(1)
	s.since = since
	if s.err != nil {
		return nil, s.err
	}
	return s.counts, nil
}

func TestCurrent_PermitRatio(t *testing.T) {
	store := &fakeStore{counts: map[model.Verdict]int{
		model.VerdictPermit:   8,
		model.VerdictEscalate: 1,
		model.VerdictBlock:    1,
	}}
	c := New(store)

	score, err := c.Current(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 1e-9)
}

func TestCurrent_EmptyWindowIsZero(t *testing.T) {
	c := New(&fakeStore{counts: map[model.Verdict]int{}})

	score, err := c.Current(context.Background())
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestCurrent_CachesUntilInvalidated(t *testing.T) {
	store := &fakeStore{counts: map[model.Verdict]int{model.VerdictPermit: 4}}
	c := New(store)
	ctx := context.Background()

	_, err := c.Current(ctx)
	require.NoError(t, err)
	_, err = c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.calls.Load(), "second read must hit the cache")

	store.counts = map[model.Verdict]int{model.VerdictPermit: 1, model.VerdictBlock: 1}
	c.Invalidate()

	score, err := c.Current(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestCurrent_CacheExpiresAsWindowSlides(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{counts: map[model.Verdict]int{model.VerdictPermit: 2}}
	c := New(store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := c.Current(ctx)
	require.NoError(t, err)
	_, err = c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.calls.Load())

	// Past the cache TTL entries may have aged out of the window, so the
	// next read recomputes even without an append.
	now = now.Add(cacheTTL + time.Second)
	_, err = c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestRecompute_BypassesCache(t *testing.T) {
	store := &fakeStore{counts: map[model.Verdict]int{model.VerdictPermit: 4}}
	c := New(store)
	ctx := context.Background()

	_, err := c.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), store.calls.Load())

	store.counts = map[model.Verdict]int{model.VerdictPermit: 1, model.VerdictBlock: 3}
	score, err := c.Recompute(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, score, 1e-9)
	assert.Equal(t, int64(2), store.calls.Load())

	// The fresh value is cached for later reads.
	score, err = c.Current(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, score, 1e-9)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestCurrent_WindowBound(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{counts: map[model.Verdict]int{model.VerdictPermit: 1}}
	c := New(store,
		WithWindow(7*24*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	_, err := c.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), store.since)
}

func TestCurrent_StoreErrorPropagates(t *testing.T) {
	c := New(&fakeStore{err: errors.New("connection refused")})

	_, err := c.Current(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eas: recompute")
}
