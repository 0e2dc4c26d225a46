// Package service composes the book with its consumers: it snapshots the
// book on a fixed cadence and fans each snapshot out to sinks, watches
// staleness transitions and prices orders against the current book.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Sink consumes periodic book snapshots. Publish must honour ctx.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap domain.BookSnapshot) error
}

// PublisherConfig controls the snapshot cadence.
type PublisherConfig struct {
	Interval    time.Duration
	Depth       int
	SinkTimeout time.Duration
}

// DefaultPublisherConfig matches the dashboard refresh rate.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Interval:    500 * time.Millisecond,
		Depth:       20,
		SinkTimeout: 2 * time.Second,
	}
}

// Publisher takes a snapshot every interval and hands it to every sink
// concurrently. Sinks never see the book itself, only copies.
type Publisher struct {
	reader domain.BookReader
	sinks  []Sink
	cfg    PublisherConfig
	logger *slog.Logger
}

// NewPublisher creates a Publisher. Nil sinks are skipped.
func NewPublisher(reader domain.BookReader, cfg PublisherConfig, logger *slog.Logger, sinks ...Sink) (*Publisher, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("publisher: interval must be positive, got %s", cfg.Interval)
	}
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Publisher{
		reader: reader,
		sinks:  kept,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "publisher")),
	}, nil
}

// Run publishes until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil {
				p.logger.WarnContext(ctx, "snapshot publish incomplete", slog.String("error", err.Error()))
			}
		}
	}
}

// PublishOnce takes one snapshot and delivers it. A failing sink does not
// stop the others; every failure is returned joined.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	snap := p.reader.Snapshot(p.cfg.Depth)

	var g errgroup.Group
	errs := make([]error, len(p.sinks))
	for i, s := range p.sinks {
		g.Go(func() error {
			sctx := ctx
			if p.cfg.SinkTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, p.cfg.SinkTimeout)
				defer cancel()
			}
			if err := s.Publish(sctx, snap); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
