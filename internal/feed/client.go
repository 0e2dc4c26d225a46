// Package feed streams Level-2 order-book deltas from a websocket endpoint
// into a book writer, reconnecting with exponential backoff until shut down.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/latency"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	// writeWait bounds every write to the peer.
	writeWait = 10 * time.Second

	// SourceName identifies this writer in status and metrics.
	SourceName = "live"
)

// Config holds the resolved settings of a Client.
type Config struct {
	URL          string
	Symbol       string
	Subscription Subscription

	PingInterval     time.Duration
	PongTimeout      time.Duration
	HandshakeTimeout time.Duration

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	LatencyWindow int
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP",
		Symbol:           "BTC-USDT-SWAP",
		Subscription:     Subscription{Op: "subscribe", Channel: "l2-orderbook"},
		PingInterval:     20 * time.Second,
		PongTimeout:      60 * time.Second,
		HandshakeTimeout: 15 * time.Second,
		InitialDelay:     2 * time.Second,
		MaxDelay:         30 * time.Second,
		Multiplier:       1.5,
		LatencyWindow:    latency.DefaultWindow,
	}
}

// Option customises a Client.
type Option func(*Client)

// WithDialer replaces the gorilla dialer.
func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option { return func(c *Client) { c.clock = clk } }

// WithObserver registers an observer for state and message events.
func WithObserver(o domain.FeedObserver) Option { return func(c *Client) { c.observer = o } }

// Client is the supervised streaming connection. Run drives the state
// machine; Shutdown stops it from any goroutine.
type Client struct {
	cfg       Config
	subscribe []byte
	writer    domain.BookWriter
	dialer    Dialer
	clock     Clock
	observer  domain.FeedObserver
	logger    *slog.Logger
	latency   *latency.Ring
	backoff   *backoff.Backoff

	running   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	mu        sync.Mutex
	cancel    context.CancelFunc
	state     State
	attempt   int
	delay     time.Duration
	sessionID string

	messages     atomic.Uint64
	decodeErrors atomic.Uint64
}

// NewClient validates cfg and builds a Client writing into w.
func NewClient(cfg Config, w domain.BookWriter, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: url is required")
	}
	if cfg.InitialDelay <= 0 || cfg.MaxDelay < cfg.InitialDelay {
		return nil, fmt.Errorf("feed: invalid reconnect delays %s..%s", cfg.InitialDelay, cfg.MaxDelay)
	}
	if cfg.Multiplier < 1 {
		return nil, fmt.Errorf("feed: backoff multiplier %.2f must be >= 1", cfg.Multiplier)
	}
	payload, err := cfg.Subscription.payload(cfg.Symbol)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		subscribe: payload,
		writer:    w,
		dialer:    WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout},
		clock:     SystemClock{},
		observer:  domain.NopObserver{},
		logger:    logger.With(slog.String("component", "feed"), slog.String("symbol", cfg.Symbol)),
		latency:   latency.NewRing(cfg.LatencyWindow),
		backoff: &backoff.Backoff{
			Min:    cfg.InitialDelay,
			Max:    cfg.MaxDelay,
			Factor: cfg.Multiplier,
		},
		done:  make(chan struct{}),
		state: StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run connects, subscribes and streams until Shutdown is called or ctx is
// cancelled. Transport failures never end Run; they lead to Backoff and a
// fresh attempt. It returns nil after Shutdown and ctx.Err() after
// cancellation.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("feed: client already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	select {
	case <-c.done:
		cancel()
	default:
	}

	c.logger.Info("feed starting", slog.String("url", c.cfg.URL))
	for {
		if runCtx.Err() != nil {
			return c.terminate(ctx)
		}

		err := c.session(runCtx)
		if runCtx.Err() != nil {
			return c.terminate(ctx)
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()
		delay := c.backoff.Duration()
		c.setBackoff(delay)

		c.logger.Warn("feed disconnected, backing off",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := c.clock.Sleep(runCtx, delay); err != nil {
			return c.terminate(ctx)
		}
	}
}

// session runs one connection from dial to the first transport error.
func (c *Client) session(ctx context.Context) error {
	c.setState(StateConnecting)

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	conn, err := c.dialer.Dial(dialCtx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadMessage.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.setState(StateSubscribing)
	_ = conn.SetWriteDeadline(c.clock.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, c.subscribe); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	c.enterStreaming()

	c.refreshDeadline(conn)
	conn.SetPongHandler(func(string) error {
		c.refreshDeadline(conn)
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("feed: read: %w (code %d)", domain.ErrFeedClosed, closeErr.Code)
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		received := c.clock.Now()
		c.refreshDeadline(conn)
		c.handleMessage(data, received)
	}
}

// handleMessage decodes one frame and applies its updates in order. A bad
// frame is counted and skipped; it never ends the session.
func (c *Client) handleMessage(data []byte, received time.Time) {
	updates, err := decodeMessage(data)
	if err != nil {
		c.decodeErrors.Add(1)
		c.observer.DecodeFailed(SourceName)
		c.logger.Warn("dropping undecodable message",
			slog.String("error", err.Error()),
			slog.Int("bytes", len(data)),
		)
		return
	}

	var res domain.ApplyResult
	for _, u := range updates {
		r := c.writer.ApplyUpdates(*u.Asks, *u.Bids)
		res.Upserts += r.Upserts
		res.Deletes += r.Deletes
		res.Noops += r.Noops
		res.Rejected += r.Rejected
		res.Err = errors.Join(res.Err, r.Err)
	}

	elapsed := c.clock.Now().Sub(received)
	c.latency.Record(elapsed)
	c.messages.Add(1)
	c.observer.MessageHandled(SourceName, elapsed, res)
}

func (c *Client) pingLoop(conn Conn, done <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, c.clock.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (c *Client) refreshDeadline(conn Conn) {
	if c.cfg.PongTimeout > 0 {
		_ = conn.SetReadDeadline(c.clock.Now().Add(c.cfg.PongTimeout))
	}
}

// Shutdown stops the client. It is idempotent and safe from any goroutine;
// once it returns no new connection attempt is started.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if !c.running.Load() {
			c.setState(StateTerminated)
		}
	})
}

func (c *Client) terminate(parent context.Context) error {
	c.setState(StateTerminated)
	c.logger.Info("feed stopped")
	select {
	case <-c.done:
		return nil
	default:
	}
	return parent.Err()
}

func (c *Client) enterStreaming() {
	c.backoff.Reset()
	c.mu.Lock()
	c.attempt = 0
	c.delay = 0
	c.sessionID = uuid.NewString()
	session := c.sessionID
	c.mu.Unlock()

	c.setState(StateStreaming)
	c.logger.Info("feed streaming", slog.String("session_id", session))
}

func (c *Client) setBackoff(delay time.Duration) {
	c.mu.Lock()
	c.delay = delay
	c.mu.Unlock()
	c.setState(StateBackoff)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = s
	attempt, delay := c.attempt, c.delay
	c.mu.Unlock()

	c.observer.StateChanged(SourceName, s.String(), attempt, delay)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a copy of the connection status for consumers.
func (c *Client) Status() domain.FeedStatus {
	c.mu.Lock()
	st := domain.FeedStatus{
		Source:       SourceName,
		State:        c.state.String(),
		Connected:    c.state == StateStreaming,
		Attempt:      c.attempt,
		BackoffDelay: c.delay,
		SessionID:    c.sessionID,
	}
	c.mu.Unlock()

	st.AvgLatency = c.latency.Average()
	st.Messages = c.messages.Load()
	st.DecodeErrors = c.decodeErrors.Load()
	return st
}

var _ domain.StatusReporter = (*Client)(nil)
