package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNew_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), ClientConfig{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}

func TestBookCache_SnapshotRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewBookCache(c, time.Minute)
	ctx := context.Background()

	_, err := cache.GetSnapshot(ctx, "BTC-USDT-SWAP")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := domain.BookSnapshot{
		Symbol:       "BTC-USDT-SWAP",
		Asks:         []domain.PriceLevel{{Price: 50000, Size: 1.5}, {Price: 50100, Size: 2}},
		Bids:         []domain.PriceLevel{{Price: 49900, Size: 2.5}, {Price: 49800, Size: 1}},
		BestAsk:      50000,
		BestBid:      49900,
		MidPrice:     49950,
		HasBestAsk:   true,
		HasBestBid:   true,
		HasMid:       true,
		LastUpdateAt: ts,
	}
	require.NoError(t, cache.SetSnapshot(ctx, "BTC-USDT-SWAP", snap))

	got, err := cache.GetSnapshot(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, snap.Asks, got.Asks)
	assert.Equal(t, snap.Bids, got.Bids, "bids come back best first")
	assert.Equal(t, 49950.0, got.MidPrice)
	assert.True(t, got.LastUpdateAt.Equal(ts))
	assert.False(t, got.Stale)

	// A one-sided snapshot replaces everything, including the old BBO.
	require.NoError(t, cache.SetSnapshot(ctx, "BTC-USDT-SWAP", domain.BookSnapshot{
		Asks:         []domain.PriceLevel{{Price: 51000, Size: 1}},
		BestAsk:      51000,
		HasBestAsk:   true,
		LastUpdateAt: ts,
		Stale:        true,
	}))
	got, err = cache.GetSnapshot(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Len(t, got.Asks, 1)
	assert.Empty(t, got.Bids)
	assert.False(t, got.HasBestBid)
	assert.False(t, got.HasMid)
	assert.True(t, got.Stale)

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetSnapshot(ctx, "BTC-USDT-SWAP")
	assert.ErrorIs(t, err, domain.ErrNotFound, "mirror expires")
}

func TestSignalBus(t *testing.T) {
	c, mr := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("book:BTC:bbo")

	require.NoError(t, bus.Publish(ctx, "book:BTC:bbo", []byte(`{"mid":1}`)))
	select {
	case msg := <-sub.Messages():
		assert.Equal(t, `{"mid":1}`, msg.Message)
	case <-time.After(time.Second):
		t.Fatal("no pub/sub message")
	}

	require.NoError(t, bus.StreamAppend(ctx, "tradesim:alerts", []byte("stale")))
	require.NoError(t, bus.StreamAppend(ctx, "tradesim:alerts", []byte("fresh")))
	entries, err := mr.Stream("tradesim:alerts")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"payload", "fresh"}, entries[1].Values)
}

func TestLeases(t *testing.T) {
	c, mr := newTestClient(t)
	leases := NewLeases(c)
	ctx := context.Background()

	first, err := leases.Acquire(ctx, "mirror:BTC", 3*time.Second)
	require.NoError(t, err)

	_, err = leases.Acquire(ctx, "mirror:BTC", 3*time.Second)
	assert.ErrorIs(t, err, domain.ErrLeaseHeld)

	require.NoError(t, first.Renew(ctx))
	assert.True(t, mr.Exists("lease:mirror:BTC"))

	first.Release()
	first.Release()
	assert.False(t, mr.Exists("lease:mirror:BTC"))
	assert.ErrorIs(t, first.Renew(ctx), domain.ErrLeaseHeld, "renew after release fails")

	second, err := leases.Acquire(ctx, "mirror:BTC", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	assert.ErrorIs(t, second.Renew(ctx), domain.ErrLeaseHeld, "expired lease is lost")
}
