// Package watch repeats the intake cycle on an interval until stopped.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rsm23/netflix-home-auto-confirm/internal/intake"
	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// State of the scheduler loop.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Runner is the intake cycle as the scheduler sees it.
type Runner interface {
	RunOnce(ctx context.Context, sess *intake.Session, opts intake.Options) (intake.Result, error)
}

// Event is emitted after every cycle.
type Event struct {
	At        time.Time
	Result    intake.Result
	Err       error
	AuthError bool
	Anchor    model.Anchor // anchor after the cycle
}

// Status is a snapshot for display.
type Status struct {
	State    State
	Interval time.Duration
	Anchor   model.Anchor
	LastLink string
	Cycles   int
	Last     *Event
}

// ErrAlreadyRunning is returned by Start when a loop is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Scheduler owns the session and runs cycles strictly one after another.
type Scheduler struct {
	runner Runner
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	opts     intake.Options
	interval time.Duration
	state    State
	session  intake.Session
	cycles   int
	last     *Event
	onEvent  func(Event)
	cancel   context.CancelFunc
	done     chan struct{}

	trigger chan struct{}
}

// Config holds the scheduler's initial settings.
type Config struct {
	Interval time.Duration
	Options  intake.Options
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns an idle scheduler.
func New(r Runner, cfg Config) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	s := &Scheduler{
		runner:   r,
		logger:   cfg.Logger,
		now:      cfg.Now,
		opts:     cfg.Options,
		interval: cfg.Interval,
		trigger:  make(chan struct{}, 1),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// OnEvent registers a callback invoked from the worker after each cycle.
func (s *Scheduler) OnEvent(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// SetInterval changes the sleep between cycles, effective after the current sleep.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	return nil
}

// SetOptions replaces the per-cycle options used from the next cycle on.
func (s *Scheduler) SetOptions(opts intake.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

// Trigger wakes a sleeping loop so the next cycle starts now. It never
// interrupts a cycle in flight and is ignored unless the loop is running.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    s.state,
		Interval: s.interval,
		Anchor:   s.session.Anchor,
		LastLink: s.session.LastLink,
		Cycles:   s.cycles,
	}
	if s.last != nil {
		ev := *s.last
		st.Last = &ev
	}
	return st
}

// Start runs the loop in a new goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateRunning
	// A wake-up left over from the previous run must not skip the first sleep.
	select {
	case <-s.trigger:
	default:
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return nil
}

// Stop signals the loop and waits until the in-flight cycle has finished.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run loops until ctx is cancelled. A new session anchor is taken at start;
// the last actioned link survives restarts.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.state = StateRunning
	s.session.Anchor = s.session.Anchor.Advance(model.AnchorNow(s.now()))
	interval := s.interval
	s.mu.Unlock()

	s.logger.Info("watch started", "interval", interval, "anchor", s.Status().Anchor.String())
	defer func() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		s.logger.Info("watch stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		// A stop request lets the cycle in flight complete.
		s.tick(context.WithoutCancel(ctx))

		s.mu.Lock()
		interval = s.interval
		s.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tick runs one cycle on a private copy of the session and publishes the
// outcome. Panics are logged and the loop continues.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	sess := s.session
	opts := s.opts
	s.mu.Unlock()

	var (
		res intake.Result
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cycle panic: %v", r)
			}
		}()
		res, err = s.runner.RunOnce(ctx, &sess, opts)
	}()

	if err != nil {
		s.logger.Error("cycle failed", "err", err, "auth", mailbox.IsAuthError(err))
	}
	if res.Actioned {
		sess.Anchor = sess.Anchor.Advance(res.NextAnchor)
	}

	ev := Event{
		At:        s.now(),
		Result:    res,
		Err:       err,
		AuthError: mailbox.IsAuthError(err),
		Anchor:    sess.Anchor,
	}
	s.logger.Info("cycle done", "code", res.Code.String(), "actioned", res.Actioned, "next_anchor", res.NextAnchor.String())

	s.mu.Lock()
	s.session = sess
	s.cycles++
	s.last = &ev
	fn := s.onEvent
	s.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}
