package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newBook(t *testing.T) (*book.Book, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := book.New(book.Config{Symbol: "BTC-USDT-SWAP", StaleThreshold: 10 * time.Second, Now: clk.Now}, discardLogger())
	b.ApplyUpdates(
		[]domain.Delta{{Price: "50000", Quantity: "1.5"}, {Price: "50100", Quantity: "2"}},
		[]domain.Delta{{Price: "49900", Quantity: "2.5"}},
	)
	return b, clk
}

type recordingSink struct {
	name string
	err  error

	mu    sync.Mutex
	snaps []domain.BookSnapshot
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, snap domain.BookSnapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

type stubCache struct {
	symbol string
	snap   domain.BookSnapshot
	err    error
}

func (c *stubCache) SetSnapshot(_ context.Context, symbol string, snap domain.BookSnapshot) error {
	c.symbol, c.snap = symbol, snap
	return c.err
}

type busEvent struct {
	target  string
	payload map[string]any
}

type stubBus struct {
	mu        sync.Mutex
	published []busEvent
	streamed  []busEvent
	err       error
}

func (b *stubBus) Publish(_ context.Context, channel string, payload []byte) error {
	var m map[string]any
	_ = json.Unmarshal(payload, &m)
	b.mu.Lock()
	b.published = append(b.published, busEvent{channel, m})
	b.mu.Unlock()
	return b.err
}

func (b *stubBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	var m map[string]any
	_ = json.Unmarshal(payload, &m)
	b.mu.Lock()
	b.streamed = append(b.streamed, busEvent{stream, m})
	b.mu.Unlock()
	return b.err
}

type stubNotifier struct {
	events []string
}

func (n *stubNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

func TestNewPublisher_RejectsZeroInterval(t *testing.T) {
	b, _ := newBook(t)
	_, err := NewPublisher(b, PublisherConfig{}, discardLogger())
	assert.Error(t, err)
}

func TestPublisher_FailingSinkDoesNotStopOthers(t *testing.T) {
	b, _ := newBook(t)
	boom := errors.New("boom")
	bad := &recordingSink{name: "bad", err: boom}
	good := &recordingSink{name: "good"}

	p, err := NewPublisher(b, DefaultPublisherConfig(), discardLogger(), bad, nil, good)
	require.NoError(t, err)

	err = p.PublishOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")

	require.Equal(t, 1, good.count())
	snap := good.snaps[0]
	assert.Equal(t, 49950.0, snap.MidPrice)
	assert.Equal(t, 2, snap.AskLevels)
}

func TestPublisher_RunUntilCancelled(t *testing.T) {
	b, _ := newBook(t)
	sink := &recordingSink{name: "rec"}
	p, err := NewPublisher(b, PublisherConfig{Interval: 5 * time.Millisecond, Depth: 5}, discardLogger(), sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestMirror_StoresAndPublishesBBO(t *testing.T) {
	b, _ := newBook(t)
	cache := &stubCache{}
	bus := &stubBus{}
	m := NewMirror(cache, bus, discardLogger())

	require.NoError(t, m.Publish(context.Background(), b.Snapshot(10)))
	assert.Equal(t, "BTC-USDT-SWAP", cache.symbol)
	assert.Equal(t, 50000.0, cache.snap.BestAsk)

	require.Len(t, bus.published, 1)
	assert.Equal(t, "book:BTC-USDT-SWAP:bbo", bus.published[0].target)
	assert.Equal(t, 49950.0, bus.published[0].payload["mid_price"])
}

func TestMirror_BusFailureIsNotFatal(t *testing.T) {
	b, _ := newBook(t)
	m := NewMirror(&stubCache{}, &stubBus{err: errors.New("down")}, discardLogger())
	assert.NoError(t, m.Publish(context.Background(), b.Snapshot(1)))

	failing := NewMirror(&stubCache{err: errors.New("down")}, nil, discardLogger())
	assert.Error(t, failing.Publish(context.Background(), b.Snapshot(1)))
}

func TestAlerter_RaisesOnTransitionsOnly(t *testing.T) {
	b, clk := newBook(t)
	bus := &stubBus{}
	n := &stubNotifier{}
	a := NewAlerter(n, bus, discardLogger())
	a.now = clk.Now
	ctx := context.Background()

	require.NoError(t, a.Publish(ctx, b.Snapshot(1)))
	require.NoError(t, a.Publish(ctx, b.Snapshot(1)))
	assert.Empty(t, n.events, "priming and steady state are silent")

	clk.Advance(11 * time.Second)
	require.NoError(t, a.Publish(ctx, b.Snapshot(1)))
	require.NoError(t, a.Publish(ctx, b.Snapshot(1)))
	assert.Equal(t, []string{notify.EventBookStale}, n.events)
	assert.True(t, a.Stale())

	b.ApplyUpdates(nil, nil)
	require.NoError(t, a.Publish(ctx, b.Snapshot(1)))
	assert.Equal(t, []string{notify.EventBookStale, notify.EventBookFresh}, n.events)

	require.Len(t, bus.streamed, 2)
	assert.Equal(t, AlertStream, bus.streamed[0].target)
	assert.Equal(t, notify.EventBookStale, bus.streamed[0].payload["event"])
	assert.Equal(t, notify.EventBookFresh, bus.streamed[1].payload["event"])
}

func TestAlerter_StartingStaleIsNotAnAlert(t *testing.T) {
	empty := book.New(book.Config{Symbol: "X", StaleThreshold: time.Second}, discardLogger())
	n := &stubNotifier{}
	a := NewAlerter(n, nil, discardLogger())

	require.NoError(t, a.Publish(context.Background(), empty.Snapshot(1)))
	require.NoError(t, a.Publish(context.Background(), empty.Snapshot(1)))
	assert.True(t, a.Stale())
	assert.Empty(t, n.events)

	empty.ApplyUpdates([]domain.Delta{{Price: "101", Quantity: "1"}}, []domain.Delta{{Price: "99", Quantity: "1"}})
	require.NoError(t, a.Publish(context.Background(), empty.Snapshot(1)))
	assert.False(t, a.Stale())
	assert.Empty(t, n.events, "first data after startup is not a recovery")
}

func TestEstimator_Quote(t *testing.T) {
	b, clk := newBook(t)
	e := NewEstimator(costmodel.New(costmodel.DefaultParams(), discardLogger()), b, book.NewMonitor(b, 10*time.Second, clk.Now), "BTC-USDT-SWAP")

	q, err := e.Quote(costmodel.Order{Size: 100, Volatility: 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 11.5, q.MarketImpact, 1e-9)
	assert.InDelta(t, 0.0035, q.Slippage, 1e-12)
	assert.InDelta(t, 0.1, q.Fee, 1e-12)
	assert.InDelta(t, 11.6035, q.NetCost, 1e-9)
	assert.InDelta(t, 1160.35, q.CostBps, 1e-6)
	assert.True(t, q.HasMid)
	assert.Equal(t, 49950.0, q.MidPrice)
	assert.InDelta(t, 100.0/49950.0, q.Quantity, 1e-12)
	assert.False(t, q.BookStale)
	assert.Equal(t, clk.Now(), q.BookAsOf)

	clk.Advance(time.Minute)
	q, err = e.Quote(costmodel.Order{Size: 100, Volatility: 0.3})
	require.NoError(t, err)
	assert.True(t, q.BookStale, "stale book still quotes but says so")
}

func TestEstimator_RejectsBadOrders(t *testing.T) {
	b, _ := newBook(t)
	e := NewEstimator(costmodel.New(costmodel.DefaultParams(), discardLogger()), b, book.NewMonitor(b, time.Second, nil), "X")

	for _, o := range []costmodel.Order{
		{Size: 0, Volatility: 0.1},
		{Size: -5, Volatility: 0.1},
		{Size: 10, Volatility: -0.1},
		{Size: 10, Volatility: 0.1, FeeTier: -1},
	} {
		_, err := e.Quote(o)
		assert.ErrorIs(t, err, ErrInvalidOrder, "%+v", o)
	}
}
