package app

import (
	"context"
	"sync"
	_ "time/tzdata"

	"reminder_engine/internal/domain/reminder"
)

type fakeStore struct {
	mu        sync.Mutex
	zones     []string
	zonesErr  error
	byKind    map[reminder.Kind][]reminder.Schedule
	kindErr   map[reminder.Kind]error
	queried   map[reminder.Kind]int
	lastProbe []reminder.Probe
}

func newFakeStore(zones ...string) *fakeStore {
	return &fakeStore{
		zones:   zones,
		byKind:  make(map[reminder.Kind][]reminder.Schedule),
		kindErr: make(map[reminder.Kind]error),
		queried: make(map[reminder.Kind]int),
	}
}

func (f *fakeStore) add(s reminder.Schedule) {
	f.byKind[s.Kind] = append(f.byKind[s.Kind], s)
}

func (f *fakeStore) Timezones(context.Context) ([]string, error) {
	return f.zones, f.zonesErr
}

func (f *fakeStore) ListCandidates(_ context.Context, kind reminder.Kind, probes []reminder.Probe) ([]reminder.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried[kind]++
	f.lastProbe = probes
	if err := f.kindErr[kind]; err != nil {
		return nil, err
	}
	return f.byKind[kind], nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRenderer) Subject() string { return "Your reminder" }

func (r *fakeRenderer) RenderReminderBody(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return "<p>Reminder</p>", r.err
}

type published struct {
	topic string
	event reminder.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, event reminder.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, event: event})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type countingObserver struct {
	mu             sync.Mutex
	scheduleErrors map[reminder.Kind]int
	batchSizes     []int
}

func (o *countingObserver) ScheduleError(kind reminder.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scheduleErrors == nil {
		o.scheduleErrors = make(map[reminder.Kind]int)
	}
	o.scheduleErrors[kind]++
}

func (o *countingObserver) BatchSize(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batchSizes = append(o.batchSizes, n)
}
