package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStore_LimitWithinWindow(t *testing.T) {
	s := NewMemoryStore(15*time.Minute, 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := s.Hit(ctx, "203.0.113.1", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res, err := s.Hit(ctx, "203.0.113.1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Allowed, "11th request should be denied")
	assert.Equal(t, t0, res.Oldest)

	// Other keys are independent
	res, _ = s.Hit(ctx, "203.0.113.2", t0.Add(time.Minute))
	assert.True(t, res.Allowed)
}

func TestMemoryStore_NonPositiveLimitClampsToOne(t *testing.T) {
	for _, limit := range []int{0, -3} {
		s := NewMemoryStore(time.Minute, limit)
		ctx := context.Background()

		res, err := s.Hit(ctx, "k", t0)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "limit %d: first request", limit)

		res, err = s.Hit(ctx, "k", t0.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, res.Allowed, "limit %d: second request", limit)
		assert.Equal(t, t0, res.Oldest)
	}
}

func TestMemoryStore_WindowRollsOver(t *testing.T) {
	s := NewMemoryStore(time.Minute, 2)
	ctx := context.Background()

	s.Hit(ctx, "k", t0)
	s.Hit(ctx, "k", t0.Add(30*time.Second))

	res, _ := s.Hit(ctx, "k", t0.Add(59*time.Second))
	assert.False(t, res.Allowed)

	// First hit falls out exactly at t0+window
	res, _ = s.Hit(ctx, "k", t0.Add(time.Minute))
	assert.True(t, res.Allowed)
}

func TestMemoryStore_DeniedRequestsAreNotRecorded(t *testing.T) {
	s := NewMemoryStore(time.Minute, 1)
	ctx := context.Background()

	s.Hit(ctx, "k", t0)
	for i := 0; i < 5; i++ {
		res, _ := s.Hit(ctx, "k", t0.Add(time.Duration(i+1)*time.Second))
		assert.False(t, res.Allowed)
	}

	res, _ := s.Hit(ctx, "k", t0.Add(time.Minute+time.Millisecond))
	assert.True(t, res.Allowed)
}

func TestMemoryStore_Prune(t *testing.T) {
	s := NewMemoryStore(time.Minute, 5)
	ctx := context.Background()

	s.Hit(ctx, "old", t0)
	s.Hit(ctx, "fresh", t0.Add(50*time.Second))
	require.Equal(t, 2, s.Len())

	removed := s.Prune(t0.Add(90 * time.Second))

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())

	res, _ := s.Hit(ctx, "fresh", t0.Add(91*time.Second))
	assert.True(t, res.Allowed)
}

func TestMemoryStore_ConcurrentHits(t *testing.T) {
	s := NewMemoryStore(time.Hour, 50)
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Hit(ctx, "shared", t0.Add(time.Duration(i)*time.Millisecond))
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
			s.Hit(ctx, fmt.Sprintf("key-%d", i%7), t0)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
}
