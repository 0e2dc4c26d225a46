package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/cache/redis"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) Name() string { return "counting" }

func (s *countingSink) Publish(context.Context, domain.BookSnapshot) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestLeasedSink_ForwardsOnlyWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := redis.New(context.Background(), redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	inner := &countingSink{}
	ls := newLeasedSink(inner, redis.NewLeases(c), testSymbol, time.Second, discardLogger())
	assert.Equal(t, "counting", ls.Name())

	require.NoError(t, ls.Publish(context.Background(), domain.BookSnapshot{}))
	assert.Zero(t, inner.count(), "not forwarded before the lease is taken")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ls.Run(ctx) }()

	require.Eventually(t, ls.held.Load, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ls.Publish(context.Background(), domain.BookSnapshot{}))
	assert.Equal(t, 1, inner.count())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, ls.held.Load())
	assert.False(t, mr.Exists("lease:mirror:"+testSymbol), "released on shutdown")
}
