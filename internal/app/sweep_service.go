// internal/app/sweep_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reminder_engine/internal/domain/reminder"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SweepService performs the query, match, aggregate and emit work for one tick.
type SweepService interface {
	// Sweep evaluates every active schedule against [windowStart, windowEnd) and publishes
	// one batch when at least one subscriber is due. Sweeps are idempotent per window.
	Sweep(ctx context.Context, windowStart, windowEnd time.Time) (*SweepReport, error)
}

// Renderer produces the batch content. It is called at most once per sweep and never for
// a sweep without recipients.
type Renderer interface {
	Subject() string
	RenderReminderBody(ctx context.Context) (string, error)
}

// Observer receives sweep-level measurements.
type Observer interface {
	ScheduleError(kind reminder.Kind)
	BatchSize(recipients int)
}

type nopObserver struct{}

func (nopObserver) ScheduleError(reminder.Kind) {}
func (nopObserver) BatchSize(int)               {}

// SweepReport summarises one sweep. It lives only as long as the sweep's log line.
type SweepReport struct {
	WindowStart   time.Time
	WindowEnd     time.Time
	SkippedZones  []string
	Candidates    map[reminder.Kind]int
	Outcomes      []reminder.Outcome
	Recipients    []reminder.Recipient
	Emitted       bool
	ScheduleFails int
}

// SweepServiceImpl implements the SweepService interface.
type SweepServiceImpl struct {
	store      reminder.Store
	normalizer *reminder.Normalizer
	matcher    *reminder.Matcher
	renderer   Renderer
	emitter    *Emitter
	observer   Observer
	logger     logrus.FieldLogger
}

func NewSweepServiceImpl(
	store reminder.Store,
	normalizer *reminder.Normalizer,
	renderer Renderer,
	emitter *Emitter,
	observer Observer,
	logger logrus.FieldLogger,
) *SweepServiceImpl {
	if observer == nil {
		observer = nopObserver{}
	}
	return &SweepServiceImpl{
		store:      store,
		normalizer: normalizer,
		matcher:    reminder.NewMatcher(normalizer),
		renderer:   renderer,
		emitter:    emitter,
		observer:   observer,
		logger:     logger,
	}
}

func (s *SweepServiceImpl) Sweep(ctx context.Context, windowStart, windowEnd time.Time) (*SweepReport, error) {
	windowStart, windowEnd = windowStart.UTC(), windowEnd.UTC()
	report := &SweepReport{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Candidates:  make(map[reminder.Kind]int),
	}
	log := s.logger.WithField("tick", windowStart.Format(time.RFC3339))

	// 1. Build one probe per time zone in use.
	zones, err := s.store.Timezones(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: list timezones: %w", reminder.ErrStoreUnavailable, err)
	}
	probes := make([]reminder.Probe, 0, len(zones))
	for _, tz := range zones {
		slots, err := s.normalizer.Slots(tz, windowStart, windowEnd)
		if err != nil {
			log.WithError(err).WithField("timezone", tz).Warn("Skipping time zone that cannot be normalized")
			report.SkippedZones = append(report.SkippedZones, tz)
			continue
		}
		probes = append(probes, reminder.Probe{Timezone: tz, Slots: slots})
	}
	if len(probes) == 0 {
		log.Debug("No time zones to probe for this tick")
		return report, nil
	}

	// 2. Query every kind concurrently and join before aggregation.
	kinds := reminder.Kinds()
	candidates := make([][]reminder.Schedule, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			found, err := s.store.ListCandidates(gctx, kind, probes)
			if err != nil {
				return fmt.Errorf("list %s candidates: %w", kind, err)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("%w: %w", reminder.ErrStoreUnavailable, err)
	}

	// 3. Match. A broken schedule becomes an outcome with an error, never an abort.
	matches := make([][]Match, len(kinds))
	for i, kind := range kinds {
		report.Candidates[kind] = len(candidates[i])
		for _, sched := range candidates[i] {
			fired, err := s.matcher.Fires(sched, windowStart, windowEnd)
			report.Outcomes = append(report.Outcomes, reminder.Outcome{Schedule: sched, Fired: fired, Err: err})
			if err != nil {
				report.ScheduleFails++
				s.observer.ScheduleError(kind)
				log.WithError(err).WithFields(logrus.Fields{
					"kind":          kind,
					"subscriber_id": sched.SubscriberID,
					"timezone":      sched.Timezone,
				}).Warn("Skipping schedule that could not be evaluated")
				continue
			}
			if fired {
				matches[i] = append(matches[i], Match{SubscriberID: sched.SubscriberID, Contact: sched.Contact, Kind: kind})
			}
		}
	}

	// 4. Deduplicate by subscriber.
	report.Recipients = Merge(matches...)
	s.observer.BatchSize(len(report.Recipients))
	if len(report.Recipients) == 0 {
		log.Debug("No reminders due for this tick")
		return report, nil
	}

	// 5. Render once and emit once.
	body, err := s.renderer.RenderReminderBody(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: render body: %w", reminder.ErrPublish, err)
	}
	emitted, err := s.emitter.Emit(ctx, windowStart, report.Recipients, s.renderer.Subject(), body)
	report.Emitted = emitted
	if err != nil {
		return report, err
	}
	return report, nil
}

// Classify maps a sweep error onto its taxonomy label.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, reminder.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, reminder.ErrPublish):
		return "publish_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "failed"
	}
}
