package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradesim/internal/cache/redis"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/service"
)

// leasedSink forwards snapshots only while this process holds the writer
// lease, so two processes on one symbol never interleave mirror writes.
type leasedSink struct {
	sink   service.Sink
	leases *redis.Leases
	name   string
	ttl    time.Duration
	logger *slog.Logger
	held   atomic.Bool
}

func newLeasedSink(sink service.Sink, leases *redis.Leases, symbol string, ttl time.Duration, logger *slog.Logger) *leasedSink {
	return &leasedSink{
		sink:   sink,
		leases: leases,
		name:   "mirror:" + symbol,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "mirror-lease"), slog.String("lease", "mirror:"+symbol)),
	}
}

func (l *leasedSink) Name() string { return l.sink.Name() }

func (l *leasedSink) Publish(ctx context.Context, snap domain.BookSnapshot) error {
	if !l.held.Load() {
		return nil
	}
	return l.sink.Publish(ctx, snap)
}

// Run keeps trying to take the lease and holds it for as long as possible.
func (l *leasedSink) Run(ctx context.Context) error {
	retry := time.NewTicker(l.ttl)
	defer retry.Stop()

	for {
		lease, err := l.leases.Acquire(ctx, l.name, l.ttl)
		switch {
		case err == nil:
			l.logger.InfoContext(ctx, "mirror lease acquired")
			l.held.Store(true)
			keepErr := lease.Keep(ctx)
			l.held.Store(false)
			if keepErr != nil {
				l.logger.WarnContext(ctx, "mirror lease lost", slog.String("error", keepErr.Error()))
			}
		case errors.Is(err, domain.ErrLeaseHeld):
			l.logger.DebugContext(ctx, "mirror lease held elsewhere")
		default:
			l.logger.WarnContext(ctx, "mirror lease acquire failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
		}
	}
}
