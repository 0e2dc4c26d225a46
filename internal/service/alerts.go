package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/notify"
)

// AlertStream is the durable stream receiving staleness transitions.
const AlertStream = "tradesim:alerts"

// Notifier is the part of notify.Notifier the alerter uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Alerter raises an alert when the book turns stale and again when it
// recovers. It is a Sink so it sees the same snapshots as everyone else.
// The first snapshot of a book that has data only primes the state, and a
// never-updated book stays unprimed, so startup is not a transition.
type Alerter struct {
	notifier Notifier
	bus      domain.SignalBus
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	primed bool
	stale  bool
	since  time.Time
}

// NewAlerter creates an Alerter. notifier and bus may each be nil.
func NewAlerter(notifier Notifier, bus domain.SignalBus, logger *slog.Logger) *Alerter {
	return &Alerter{
		notifier: notifier,
		bus:      bus,
		logger:   logger.With(slog.String("component", "alerter")),
		now:      time.Now,
	}
}

func (a *Alerter) Name() string { return "alerts" }

// Publish checks snap for a transition and emits it.
func (a *Alerter) Publish(ctx context.Context, snap domain.BookSnapshot) error {
	a.mu.Lock()
	if !a.primed {
		a.stale, a.since = snap.Stale, a.now()
		a.primed = !snap.LastUpdateAt.IsZero()
		a.mu.Unlock()
		return nil
	}
	if snap.Stale == a.stale {
		a.mu.Unlock()
		return nil
	}
	lasted := a.now().Sub(a.since)
	a.stale, a.since = snap.Stale, a.now()
	a.mu.Unlock()

	event, title, msg := notify.EventBookFresh, "Book recovered",
		fmt.Sprintf("%s is updating again after %s stale", snap.Symbol, lasted.Round(time.Second))
	if snap.Stale {
		event, title = notify.EventBookStale, "Book stale"
		msg = fmt.Sprintf("%s has not updated since %s", snap.Symbol, formatLast(snap.LastUpdateAt))
	}
	a.logger.WarnContext(ctx, title, slog.String("symbol", snap.Symbol), slog.String("event", event))

	var firstErr error
	if a.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":          event,
			"symbol":         snap.Symbol,
			"last_update_at": formatLast(snap.LastUpdateAt),
			"at":             a.now().UTC().Format(time.RFC3339Nano),
		})
		if err := a.bus.StreamAppend(ctx, AlertStream, payload); err != nil {
			firstErr = fmt.Errorf("alerter: append: %w", err)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Notify(ctx, event, title, msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("alerter: %w", err)
		}
	}
	return firstErr
}

// Stale reports the last observed staleness.
func (a *Alerter) Stale() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stale
}

func formatLast(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
