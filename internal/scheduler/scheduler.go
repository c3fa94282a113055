package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SweepFunc runs one full evaluation sweep over all feeds.
type SweepFunc func(ctx context.Context) error

// State reflects the scheduler lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// String renders the state for logs and the API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives periodic sweeps plus on-demand triggers. Sweeps
// never overlap: a manual trigger received while a sweep is running is
// queued and executed right after it finishes.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	trigger chan struct{}
	state   atomic.Int32
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// TriggerNow requests an immediate sweep. Returns false when a trigger
// is already pending; pending triggers coalesce into a single sweep.
func (s *Scheduler) TriggerNow() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks, executing an initial sweep and then one sweep per
// interval or manual trigger, until ctx is cancelled. Stopped is
// terminal: once Run returns no further sweeps execute.
func (s *Scheduler) Run(ctx context.Context, sweep SweepFunc) error {
	defer s.state.Store(int32(StateStopped))

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.execute(ctx, sweep, "startup")

	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.execute(ctx, sweep, "interval")
		case <-s.trigger:
			s.execute(ctx, sweep, "manual")
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, sweep SweepFunc, reason string) {
	if ctx.Err() != nil {
		return
	}

	s.state.Store(int32(StateRunning))
	defer s.state.Store(int32(StateIdle))

	started := time.Now()
	s.logger.Info().Str("reason", reason).Msg("executing sweep")

	if err := sweep(ctx); err != nil {
		s.logger.Error().Err(err).Str("reason", reason).Msg("sweep failed")
		return
	}

	s.logger.Debug().Dur("elapsed", time.Since(started)).Msg("sweep finished")
}
