package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"reminder_engine/internal/app"
	"reminder_engine/internal/domain/reminder"
	"reminder_engine/internal/infra/database"

	"github.com/sirupsen/logrus/hooks/test"
)

var t0 = time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type window struct{ start, end time.Time }

// fakeSweeper answers each sweep with the next scripted step.
type fakeSweeper struct {
	mu      sync.Mutex
	windows []window
	steps   []func(ctx context.Context) error
	entered chan struct{}
}

func newFakeSweeper(steps ...func(ctx context.Context) error) *fakeSweeper {
	return &fakeSweeper{steps: steps, entered: make(chan struct{}, 16)}
}

func (f *fakeSweeper) Sweep(ctx context.Context, start, end time.Time) (*app.SweepReport, error) {
	f.mu.Lock()
	n := len(f.windows)
	f.windows = append(f.windows, window{start, end})
	f.mu.Unlock()
	f.entered <- struct{}{}

	if n < len(f.steps) {
		if err := f.steps[n](ctx); err != nil {
			return nil, err
		}
	}
	return &app.SweepReport{WindowStart: start, WindowEnd: end}, nil
}

func (f *fakeSweeper) calls() []window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]window(nil), f.windows...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	ticks  []TickResult
	sweeps chan string
}

func newFakeRecorder() *fakeRecorder { return &fakeRecorder{sweeps: make(chan string, 16)} }

func (r *fakeRecorder) TickObserved(result TickResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, result)
}

func (r *fakeRecorder) SweepObserved(outcome string, _ time.Duration) { r.sweeps <- outcome }

func (r *fakeRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case outcome := <-r.sweeps:
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not finish")
		return ""
	}
}

type fakeClaimer struct {
	claimed bool
	err     error
}

func (c fakeClaimer) Claim(context.Context, time.Time) (bool, error) { return c.claimed, c.err }

func startScheduler(t *testing.T, sweeper app.SweepService, opts ...Option) (*TickScheduler, *fakeRecorder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	rec := newFakeRecorder()
	opts = append([]Option{WithClock(fakeClock{now: t0}), WithRecorder(rec)}, opts...)
	s := NewTickScheduler(Config{}, sweeper, logger, opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, rec
}

func waitEntered(t *testing.T, f *fakeSweeper) {
	t.Helper()
	select {
	case <-f.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not start")
	}
}

type stubRenderer struct{}

func (stubRenderer) Subject() string { return "Your reminder" }

func (stubRenderer) RenderReminderBody(context.Context) (string, error) {
	return "<p>Reminder</p>", nil
}

// holdingPublisher keeps every publish open until release is closed.
type holdingPublisher struct {
	mu      sync.Mutex
	events  []reminder.Event
	entered chan struct{}
	release chan struct{}
}

func newHoldingPublisher() *holdingPublisher {
	return &holdingPublisher{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (p *holdingPublisher) Publish(ctx context.Context, _ string, event reminder.Event) error {
	p.entered <- struct{}{}
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *holdingPublisher) published() []reminder.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]reminder.Event(nil), p.events...)
}

func TestTickCoalescesWhileSweeping(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := database.NewMemoryScheduleStore(reminder.Schedule{
		SubscriberID: "sub-1",
		Contact:      "sub-1@example.com",
		Kind:         reminder.KindDaily,
		LocalTime:    reminder.LocalTime{Hour: 9},
		Timezone:     "Asia/Ho_Chi_Minh",
		Active:       true,
	})
	pub := newHoldingPublisher()
	sweeper := app.NewSweepServiceImpl(store, reminder.NewNormalizer(0), stubRenderer{}, app.NewEmitter(pub, "reminders.batch", logger), nil, logger)
	s, rec := startScheduler(t, sweeper)

	if res, err := s.Tick(t0); res != TickDispatched || err != nil {
		t.Fatalf("first Tick() = %s, %v", res, err)
	}
	select {
	case <-pub.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not reach the publisher")
	}

	for _, at := range []time.Time{t0.Add(time.Minute), t0.Add(90 * time.Second)} {
		res, err := s.Tick(at)
		if res != TickCoalesced {
			t.Fatalf("Tick(%s) = %s, want coalesced", at.Format(time.RFC3339), res)
		}
		if !errors.Is(err, reminder.ErrConcurrencyViolation) {
			t.Fatalf("Tick(%s) error = %v, want ErrConcurrencyViolation", at.Format(time.RFC3339), err)
		}
	}

	close(pub.release)
	if outcome := rec.next(t); outcome != "ok" {
		t.Fatalf("sweep outcome = %s", outcome)
	}
	events := pub.published()
	if len(events) != 1 {
		t.Fatalf("published %d batches, want exactly one", len(events))
	}
	if events[0].TickTimestampUTC != "2024-01-01T02:00:00Z" || len(events[0].Recipients) != 1 || events[0].Recipients[0] != "sub-1@example.com" {
		t.Fatalf("unexpected batch %+v", events[0])
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []TickResult{TickDispatched, TickCoalesced, TickCoalesced}
	if len(rec.ticks) != len(want) {
		t.Fatalf("tick results = %v, want %v", rec.ticks, want)
	}
	for i := range want {
		if rec.ticks[i] != want[i] {
			t.Fatalf("tick results = %v, want %v", rec.ticks, want)
		}
	}
}

func TestTickCoalescesAlreadyDispatchedWindow(t *testing.T) {
	sweeper := newFakeSweeper()
	s, rec := startScheduler(t, sweeper)

	if res, err := s.Tick(t0); res != TickDispatched || err != nil {
		t.Fatalf("first Tick() = %s, %v", res, err)
	}
	rec.next(t)

	for _, at := range []time.Time{t0.Add(30 * time.Second), t0.Add(-time.Minute)} {
		res, err := s.Tick(at)
		if res != TickCoalesced || !errors.Is(err, reminder.ErrConcurrencyViolation) {
			t.Fatalf("Tick(%s) = %s, %v; want coalesced", at.Format(time.RFC3339), res, err)
		}
	}
	if res, err := s.Tick(t0.Add(time.Minute)); res != TickDispatched || err != nil {
		t.Fatalf("next window Tick() = %s, %v", res, err)
	}
	rec.next(t)

	calls := sweeper.calls()
	if len(calls) != 2 || !calls[0].start.Equal(t0) || !calls[1].start.Equal(t0.Add(time.Minute)) {
		t.Fatalf("sweeps = %v, want one per window", calls)
	}
}

func TestSweepFailureDoesNotAffectNextTick(t *testing.T) {
	sweeper := newFakeSweeper(
		func(context.Context) error { return reminder.ErrStoreUnavailable },
		func(context.Context) error { panic("boom") },
		func(context.Context) error { return nil },
	)
	s, rec := startScheduler(t, sweeper)

	want := []string{"store_unavailable", "panic", "ok"}
	for i, outcome := range want {
		if res, err := s.Tick(t0.Add(time.Duration(i) * time.Minute)); res != TickDispatched || err != nil {
			t.Fatalf("Tick #%d = %s, %v", i, res, err)
		}
		if got := rec.next(t); got != outcome {
			t.Fatalf("sweep #%d outcome = %s, want %s", i, got, outcome)
		}
	}
	if len(sweeper.calls()) != 3 {
		t.Fatalf("expected 3 sweeps, got %d", len(sweeper.calls()))
	}
}

func TestTickWindowIsMinuteAligned(t *testing.T) {
	sweeper := newFakeSweeper()
	s, rec := startScheduler(t, sweeper)

	at := time.Date(2024, 3, 10, 12, 34, 56, 700, time.FixedZone("UTC+7", 7*3600))
	if _, err := s.Tick(at); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	rec.next(t)

	calls := sweeper.calls()
	wantStart := time.Date(2024, 3, 10, 5, 34, 0, 0, time.UTC)
	if len(calls) != 1 || !calls[0].start.Equal(wantStart) || !calls[0].end.Equal(wantStart.Add(time.Minute)) {
		t.Fatalf("sweep windows = %v, want [%s, +1m)", calls, wantStart)
	}
	if calls[0].start.Location() != time.UTC {
		t.Fatalf("window start must be UTC, got %s", calls[0].start.Location())
	}
}

func TestStopRejectsNewTicks(t *testing.T) {
	sweeper := newFakeSweeper()
	s, _ := startScheduler(t, sweeper)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	res, err := s.Tick(t0)
	if res != TickRejected || !errors.Is(err, ErrStopped) {
		t.Fatalf("Tick() after Stop = %s, %v", res, err)
	}
	if len(sweeper.calls()) != 0 {
		t.Fatal("no sweep may run after Stop")
	}
}

func TestStopWaitsForInFlightSweep(t *testing.T) {
	release := make(chan struct{})
	sweeper := newFakeSweeper(func(context.Context) error {
		<-release
		return nil
	})
	s, _ := startScheduler(t, sweeper)

	if _, err := s.Tick(t0); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	waitEntered(t, sweeper)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	// Stop rejects ticks once it has marked the scheduler stopped; from there it only
	// waits for the in-flight sweep.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if res, _ := s.Tick(t0.Add(time.Minute)); res == TickRejected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Stop() never started rejecting ticks")
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-stopped:
		t.Fatalf("Stop() returned %v before the sweep finished", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return after the sweep finished")
	}
}

func TestStopAbandonsSweepAfterTimeout(t *testing.T) {
	sweeper := newFakeSweeper(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s, rec := startScheduler(t, sweeper)

	if _, err := s.Tick(t0); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	waitEntered(t, sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stop() error = %v, want context.Canceled", err)
	}
	if outcome := rec.next(t); outcome != "timeout" {
		t.Fatalf("abandoned sweep outcome = %s, want timeout", outcome)
	}
}

func TestClaimerGatesSweep(t *testing.T) {
	tests := []struct {
		name    string
		claimer fakeClaimer
		outcome string
		sweeps  int
	}{
		{name: "claimed", claimer: fakeClaimer{claimed: true}, outcome: "ok", sweeps: 1},
		{name: "lost", claimer: fakeClaimer{claimed: false}, outcome: "claim_lost", sweeps: 0},
		{name: "error", claimer: fakeClaimer{err: errors.New("redis down")}, outcome: "claim_error", sweeps: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := newFakeSweeper()
			s, rec := startScheduler(t, sweeper, WithClaimer(tt.claimer))

			if _, err := s.Tick(t0); err != nil {
				t.Fatalf("Tick() error = %v", err)
			}
			if got := rec.next(t); got != tt.outcome {
				t.Fatalf("outcome = %s, want %s", got, tt.outcome)
			}
			if got := len(sweeper.calls()); got != tt.sweeps {
				t.Fatalf("sweeps = %d, want %d", got, tt.sweeps)
			}
		})
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewTickScheduler(Config{Spec: "every minute please"}, newFakeSweeper(), logger)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() accepted an invalid cron spec")
	}
}

func TestTickBeforeStartIsRejected(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewTickScheduler(Config{}, newFakeSweeper(), logger)
	if res, err := s.Tick(t0); res != TickRejected || !errors.Is(err, ErrStopped) {
		t.Fatalf("Tick() = %s, %v", res, err)
	}
}
