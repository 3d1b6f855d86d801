package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"reminder_engine/internal/app"
	"reminder_engine/internal/domain/reminder"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSpec         = "* * * * *"
	DefaultWindow       = time.Minute
	DefaultSweepTimeout = 50 * time.Second
	DefaultWorkers      = 1
)

// ErrStopped is returned for ticks that arrive after Stop.
var ErrStopped = errors.New("tick scheduler stopped")

// TickResult describes what happened to a single tick.
type TickResult string

const (
	TickDispatched TickResult = "dispatched"
	TickCoalesced  TickResult = "coalesced"
	TickRejected   TickResult = "rejected"
)

// Clock is the time source for cadence ticks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TickClaimer arbitrates a tick between engine replicas.
// Claim reports true only to the single replica that should sweep the tick.
type TickClaimer interface {
	Claim(ctx context.Context, tick time.Time) (bool, error)
}

// Recorder receives scheduler measurements.
type Recorder interface {
	TickObserved(result TickResult)
	SweepObserved(outcome string, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) TickObserved(TickResult)             {}
func (nopRecorder) SweepObserved(string, time.Duration) {}

// Config controls the cadence. An empty Spec disables the cron cadence; ticks are then
// driven only through Tick.
type Config struct {
	Spec         string
	Window       time.Duration
	SweepTimeout time.Duration
	Workers      int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = DefaultSweepTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return c
}

type Option func(*TickScheduler)

func WithClock(c Clock) Option { return func(s *TickScheduler) { s.clock = c } }

func WithClaimer(c TickClaimer) Option { return func(s *TickScheduler) { s.claimer = c } }

func WithRecorder(r Recorder) Option { return func(s *TickScheduler) { s.recorder = r } }

// TickScheduler fires a sweep per window and never runs two sweeps at once.
// A tick arriving while a sweep is in flight is coalesced, not queued.
type TickScheduler struct {
	cfg        Config
	sweeper    app.SweepService
	clock      Clock
	claimer    TickClaimer
	recorder   Recorder
	logger     logrus.FieldLogger
	cronEngine *cron.Cron

	sweeping atomic.Bool

	mu         sync.Mutex
	started    bool
	stopped    bool
	lastWindow time.Time // start of the last dispatched window
	queue      chan time.Time
	inflight   sync.WaitGroup

	runCtx    context.Context
	cancelRun context.CancelFunc
}

func NewTickScheduler(cfg Config, sweeper app.SweepService, logger logrus.FieldLogger, opts ...Option) *TickScheduler {
	cfg = cfg.withDefaults()
	s := &TickScheduler{
		cfg:      cfg,
		sweeper:  sweeper,
		clock:    SystemClock{},
		recorder: nopRecorder{},
		logger:   logger,
		queue:    make(chan time.Time, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool and, when configured, the cron cadence.
// Sweeps outlive cancellation of ctx; use Stop to end them.
func (s *TickScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("tick scheduler already started")
	}

	if s.cfg.Spec != "" {
		s.cronEngine = cron.New(cron.WithLocation(time.UTC))
		if _, err := s.cronEngine.AddFunc(s.cfg.Spec, func() {
			_, _ = s.Tick(s.clock.Now())
		}); err != nil {
			return fmt.Errorf("could not add tick cron job %q: %w", s.cfg.Spec, err)
		}
	}

	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	for range s.cfg.Workers {
		go s.worker()
	}
	if s.cronEngine != nil {
		s.cronEngine.Start()
	}
	s.started = true

	s.logger.WithFields(logrus.Fields{
		"spec":    s.cfg.Spec,
		"window":  s.cfg.Window.String(),
		"workers": s.cfg.Workers,
	}).Info("Tick scheduler started")
	return nil
}

// Window returns the aligned sweep window containing at.
func (s *TickScheduler) Window(at time.Time) (time.Time, time.Time) {
	start := at.UTC().Truncate(s.cfg.Window)
	return start, start.Add(s.cfg.Window)
}

// Tick hands the window containing at to the worker pool. It never blocks on a sweep.
// A tick is coalesced while a sweep is in flight and when its window was already
// dispatched. A coalesced tick returns reminder.ErrConcurrencyViolation; it is not a sweep failure.
func (s *TickScheduler) Tick(at time.Time) (TickResult, error) {
	start, _ := s.Window(at)
	log := s.logger.WithField("tick", start.Format(time.RFC3339))

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		s.recorder.TickObserved(TickRejected)
		log.Warn("Tick rejected, scheduler is not running")
		return TickRejected, ErrStopped
	}
	if !s.lastWindow.IsZero() && !start.After(s.lastWindow) {
		s.recorder.TickObserved(TickCoalesced)
		log.Warn("Tick coalesced, window already dispatched")
		return TickCoalesced, fmt.Errorf("%w: window %s already dispatched", reminder.ErrConcurrencyViolation, start.Format(time.RFC3339))
	}
	if !s.sweeping.CompareAndSwap(false, true) {
		s.recorder.TickObserved(TickCoalesced)
		log.Warn("Tick coalesced, previous sweep still running")
		return TickCoalesced, fmt.Errorf("%w: tick %s", reminder.ErrConcurrencyViolation, start.Format(time.RFC3339))
	}

	s.lastWindow = start
	s.inflight.Add(1)
	s.queue <- start
	s.recorder.TickObserved(TickDispatched)
	return TickDispatched, nil
}

// Stop ends the cadence, rejects new ticks and waits for the in-flight sweep until ctx is
// done. A sweep still running after that is abandoned.
func (s *TickScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("Stopping tick scheduler...")
	if s.cronEngine != nil {
		<-s.cronEngine.Stop().Done()
	}

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
		s.logger.Info("Tick scheduler gracefully stopped")
	case <-ctx.Done():
		err = fmt.Errorf("abandoning in-flight sweep: %w", ctx.Err())
		s.logger.WithError(err).Warn("Tick scheduler stopped before the sweep finished")
	}
	s.cancelRun()
	return err
}

func (s *TickScheduler) worker() {
	for {
		select {
		case <-s.runCtx.Done():
			return
		case start := <-s.queue:
			s.run(start)
		}
	}
}

func (s *TickScheduler) run(start time.Time) {
	defer s.inflight.Done()
	began := s.clock.Now()
	outcome := s.sweep(start)
	s.sweeping.Store(false)
	s.recorder.SweepObserved(outcome, s.clock.Now().Sub(began))
}

// sweep runs one window and converts every failure, panics included, into an outcome label.
func (s *TickScheduler) sweep(start time.Time) (outcome string) {
	log := s.logger.WithField("tick", start.Format(time.RFC3339))
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Sweep panicked")
			outcome = "panic"
		}
	}()

	ctx, cancel := context.WithTimeout(s.runCtx, s.cfg.SweepTimeout)
	defer cancel()

	if s.claimer != nil {
		claimed, err := s.claimer.Claim(ctx, start)
		if err != nil {
			log.WithError(err).Error("Could not claim tick, skipping it")
			return "claim_error"
		}
		if !claimed {
			log.Debug("Tick claimed by another instance")
			return "claim_lost"
		}
	}

	report, err := s.sweeper.Sweep(ctx, start, start.Add(s.cfg.Window))
	outcome = app.Classify(err)
	if err != nil {
		log.WithError(err).WithField("outcome", outcome).Error("Sweep failed")
		return outcome
	}
	if report != nil {
		log.WithFields(logrus.Fields{
			"recipients":     len(report.Recipients),
			"schedule_fails": report.ScheduleFails,
			"skipped_zones":  len(report.SkippedZones),
			"emitted":        report.Emitted,
		}).Info("Sweep completed")
	}
	return outcome
}
