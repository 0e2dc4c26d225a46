package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/feed"
	"github.com/alanyoungcy/tradesim/internal/replay"
	"github.com/alanyoungcy/tradesim/internal/server"
	"github.com/alanyoungcy/tradesim/internal/server/handler"
	"github.com/alanyoungcy/tradesim/internal/server/ws"
	"github.com/alanyoungcy/tradesim/internal/service"
	"github.com/alanyoungcy/tradesim/internal/simdata"
)

// LiveMode streams the configured feed into the book.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode", slog.String("url", a.cfg.Feed.URL))

	fc := a.cfg.Feed
	client, err := feed.NewClient(feed.Config{
		URL:    fc.URL,
		Symbol: fc.Symbol,
		Subscription: feed.Subscription{
			Op:      fc.Subscription.Op,
			Channel: fc.Subscription.Channel,
			Raw:     fc.Subscription.Raw,
		},
		PingInterval:     fc.PingInterval.Duration,
		PongTimeout:      fc.PongTimeout.Duration,
		HandshakeTimeout: fc.HandshakeTimeout.Duration,
		InitialDelay:     fc.InitialDelay.Duration,
		MaxDelay:         fc.MaxDelay.Duration,
		Multiplier:       fc.Multiplier,
		LatencyWindow:    fc.LatencyWindow,
	}, deps.Book, a.logger, feed.WithObserver(deps.Metrics))
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	return a.serve(ctx, deps, client, nil, func(ctx context.Context) error {
		// Shutdown makes Run return nil so a signal is a clean stop.
		stop := context.AfterFunc(ctx, client.Shutdown)
		defer stop()
		return client.Run(ctx)
	})
}

// ReplayMode plays recorded samples into the book.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	rc := a.cfg.Replay
	a.logger.InfoContext(ctx, "starting replay mode", slog.String("source", rc.Source))

	samples, err := a.loadSamples(ctx, deps)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	source, err := replay.NewSource(samples, deps.Book, replay.Config{
		Speed:         rc.Speed,
		Loop:          rc.Loop,
		StartPaused:   rc.StartPaused,
		LatencyWindow: a.cfg.Feed.LatencyWindow,
	}, a.logger, replay.WithObserver(deps.Metrics))
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	return a.serve(ctx, deps, source, source, source.Run)
}

// loadSamples reads the replay source. A missing local file is replaced by
// freshly generated samples when generate_missing is set.
func (a *App) loadSamples(ctx context.Context, deps *Dependencies) ([]replay.Sample, error) {
	rc := a.cfg.Replay
	samples, err := replay.Load(ctx, rc.Source, deps.BlobReader)
	if err == nil || !errors.Is(err, fs.ErrNotExist) || !rc.GenerateMissing || strings.HasPrefix(rc.Source, "s3://") {
		return samples, err
	}

	gen := simdata.DefaultConfig()
	gen.Start = time.Now()
	gen.Seed = gen.Start.UnixNano()
	samples = simdata.Generate(gen)

	f, err := os.Create(rc.Source)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", rc.Source, err)
	}
	defer f.Close()
	if err := replay.Encode(f, samples); err != nil {
		return nil, fmt.Errorf("write %s: %w", rc.Source, err)
	}
	a.logger.WarnContext(ctx, "replay source missing, generated synthetic samples",
		slog.String("source", rc.Source),
		slog.Int("samples", len(samples)),
	)
	return samples, nil
}

// serve runs the book writer alongside the snapshot publisher, the websocket
// hub, the optional redis mirror and the HTTP API. The first component to
// fail stops the rest.
func (a *App) serve(
	ctx context.Context,
	deps *Dependencies,
	status domain.StatusReporter,
	replayCtl handler.ReplayControls,
	runWriter func(context.Context) error,
) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Symbol:    a.cfg.Feed.Symbol,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	sinks := []service.Sink{
		deps.Metrics,
		hub,
		hub.StatusSink(status),
		service.NewAlerter(deps.Notifier, deps.SignalBus, a.logger),
	}
	if deps.BookCache != nil {
		mirror := newLeasedSink(
			service.NewMirror(deps.BookCache, deps.SignalBus, a.logger),
			deps.Leases, a.cfg.Feed.Symbol, a.cfg.Redis.LeaseTTL.Duration, a.logger,
		)
		sinks = append(sinks, mirror)
		g.Go(func() error { return mirror.Run(ctx) })
	}

	publisher, err := service.NewPublisher(deps.Book, service.PublisherConfig{
		Interval:    a.cfg.Publish.Interval.Duration,
		Depth:       a.cfg.Book.SnapshotDepth,
		SinkTimeout: a.cfg.Publish.SinkTimeout.Duration,
	}, a.logger, sinks...)
	if err != nil {
		return err
	}
	g.Go(func() error {
		if err := publisher.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := runWriter(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("%s: %w", status.Status().Source, err)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, status, replayCtl)
	}

	return g.Wait()
}

func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	hub *ws.Hub,
	status domain.StatusReporter,
	replayCtl handler.ReplayControls,
) {
	pingers := map[string]handler.Pinger{}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}
	if deps.S3 != nil {
		pingers["s3"] = handler.PingFunc(deps.S3.Health)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Monitor, pingers, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.cfg.Feed.Symbol, status, deps.Monitor),
		Book:   handler.NewBookHandler(deps.Book, deps.Monitor, a.cfg.Book.SnapshotDepth),
		Estimate: handler.NewEstimateHandler(
			service.NewEstimator(deps.Model, deps.Book, deps.Monitor, a.cfg.Feed.Symbol),
			costmodel.Order{
				Size:       a.cfg.Estimate.Size,
				Volatility: a.cfg.Estimate.Volatility,
				FeeTier:    a.cfg.Estimate.FeeTier,
			},
			a.logger,
		),
		Metrics: deps.Metrics.Handler(),
	}
	if replayCtl != nil {
		handlers.Replay = handler.NewReplayHandler(replayCtl)
	}

	srv := server.NewServer(server.Config{
		Addr:        a.cfg.Server.Addr,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
