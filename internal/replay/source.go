// Package replay feeds recorded book samples into a book writer at a fixed
// cadence, as an offline stand-in for the live feed.
package replay

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
)

// SourceName identifies this writer in status and metrics.
const SourceName = "replay"

// Playback states reported in FeedStatus.State.
const (
	stateIdle     = "idle"
	statePlaying  = "playing"
	statePaused   = "paused"
	stateFinished = "finished"
	stateStopped  = "stopped"
)

// Clock supplies time and cancellable sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config controls playback.
type Config struct {
	// Speed is samples per second.
	Speed         float64
	Loop          bool
	StartPaused   bool
	LatencyWindow int
}

// Option customises a Source.
type Option func(*Source)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Source) { s.clock = c } }

// WithObserver registers an observer for playback events.
func WithObserver(o domain.FeedObserver) Option { return func(s *Source) { s.observer = o } }

// Source replays samples into a BookWriter. Controls are safe to call from
// any goroutine while Run is active.
type Source struct {
	samples  []Sample
	writer   domain.BookWriter
	clock    Clock
	observer domain.FeedObserver
	logger   *slog.Logger
	latency  *latency.Ring
	loop     bool

	wake chan struct{}

	mu     sync.Mutex
	index  int
	speed  float64
	paused bool
	loops  int
	state  string

	messages atomic.Uint64
}

// NewSource creates a Source over samples.
func NewSource(samples []Sample, w domain.BookWriter, cfg Config, logger *slog.Logger, opts ...Option) (*Source, error) {
	if len(samples) == 0 {
		return nil, domain.ErrNoSamples
	}
	if cfg.Speed <= 0 {
		return nil, fmt.Errorf("replay: speed %.2f must be positive", cfg.Speed)
	}
	s := &Source{
		samples:  samples,
		writer:   w,
		clock:    systemClock{},
		observer: domain.NopObserver{},
		logger:   logger.With(slog.String("component", "replay")),
		latency:  latency.NewRing(cfg.LatencyWindow),
		loop:     cfg.Loop,
		wake:     make(chan struct{}, 1),
		speed:    cfg.Speed,
		paused:   cfg.StartPaused,
		state:    stateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run plays samples until ctx is done. A non-looping source parks at the
// end until Restart.
func (s *Source) Run(ctx context.Context) error {
	s.logger.Info("replay starting",
		slog.Int("samples", len(s.samples)),
		slog.Float64("speed", s.Speed()),
		slog.Bool("loop", s.loop),
	)
	defer s.setState(stateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		if s.paused {
			s.mu.Unlock()
			s.setState(statePaused)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}
		if s.index >= len(s.samples) {
			if !s.loop {
				s.mu.Unlock()
				s.setState(stateFinished)
				s.logger.Info("replay finished", slog.Int("samples", len(s.samples)))
				s.waitForRestart(ctx)
				if err := ctx.Err(); err != nil {
					return err
				}
				continue
			}
			s.index = 0
			s.loops++
			s.logger.Info("reached end of samples, restarting", slog.Int("loops", s.loops))
		}
		sample := s.samples[s.index]
		s.index++
		index, speed := s.index, s.speed
		s.mu.Unlock()
		s.setState(statePlaying)

		start := s.clock.Now()
		res := s.writer.ApplyUpdates(sample.Asks, sample.Bids)
		elapsed := s.clock.Now().Sub(start)
		s.latency.Record(elapsed)
		s.messages.Add(1)
		s.observer.MessageHandled(SourceName, elapsed, res)

		if index%10 == 0 {
			s.logger.Debug("replay progress", slog.Int("index", index), slog.Int("total", len(s.samples)))
		}

		delay := time.Duration(float64(time.Second)/speed) - elapsed
		if delay > 0 {
			if err := s.clock.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
}

// waitForRestart parks a finished, non-looping source until Restart or ctx.
func (s *Source) waitForRestart(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		s.mu.Lock()
		more := s.index < len(s.samples)
		s.mu.Unlock()
		if more {
			return
		}
	}
}

// Pause stops playback after the current sample.
func (s *Source) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("replay paused")
}

// Resume continues playback.
func (s *Source) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.notify()
	s.logger.Info("replay resumed")
}

// Restart rewinds to the first sample.
func (s *Source) Restart() {
	s.mu.Lock()
	s.index = 0
	s.mu.Unlock()
	s.notify()
	s.logger.Info("replay restarted")
}

// ErrInvalidSpeed is returned by SetSpeed for non-positive speeds.
var ErrInvalidSpeed = errors.New("replay: speed must be positive")

// SetSpeed changes samples per second from the next sample on.
func (s *Source) SetSpeed(speed float64) error {
	if !(speed > 0) {
		return ErrInvalidSpeed
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	s.logger.Info("replay speed changed", slog.Float64("speed", speed))
	return nil
}

// Speed returns the current speed.
func (s *Source) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Progress returns the number of samples played in this pass and the total.
func (s *Source) Progress() (index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, len(s.samples)
}

// Status reports playback in the shared feed status form.
func (s *Source) Status() domain.FeedStatus {
	s.mu.Lock()
	st := domain.FeedStatus{
		Source:    SourceName,
		State:     s.state,
		Connected: s.state == statePlaying || s.state == statePaused,
		Replay: &domain.ReplayStatus{
			Index:  s.index,
			Total:  len(s.samples),
			Speed:  s.speed,
			Paused: s.paused,
			Loops:  s.loops,
		},
	}
	s.mu.Unlock()

	st.AvgLatency = s.latency.Average()
	st.Messages = s.messages.Load()
	return st
}

func (s *Source) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Source) setState(state string) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.observer.StateChanged(SourceName, state, 0, 0)
	}
}

var _ domain.StatusReporter = (*Source)(nil)
