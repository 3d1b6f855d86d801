package reminder

import (
	"fmt"
	"time"
)

// Matcher decides whether a schedule fires within a tick window.
// Fires is a pure function of its arguments; the Normalizer cache does not change results.
type Matcher struct {
	normalizer *Normalizer
}

func NewMatcher(normalizer *Normalizer) *Matcher {
	return &Matcher{normalizer: normalizer}
}

// Fires reports whether the schedule triggers inside the half-open UTC window
// [windowStart, windowEnd).
// Inactive schedules never fire and are not validated.
func (m *Matcher) Fires(s Schedule, windowStart, windowEnd time.Time) (bool, error) {
	if !s.Active {
		return false, nil
	}
	if err := s.Validate(); err != nil {
		return false, err
	}
	if !windowStart.Before(windowEnd) {
		return false, nil
	}

	switch s.Kind {
	case KindNone:
		for _, d := range s.AnchorDates {
			ok, err := m.triggersIn(s, d, windowStart, windowEnd)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case KindDaily, KindWeekly, KindMonthly, KindYearly:
		dates, err := m.localDates(s.Timezone, windowStart, windowEnd)
		if err != nil {
			return false, err
		}
		for _, d := range dates {
			occurs, err := s.OccursOn(d)
			if err != nil {
				return false, err
			}
			if !occurs {
				continue
			}
			ok, err := m.triggersIn(s, d, windowStart, windowEnd)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: subscriber %s: unknown recurrence kind %q", ErrInvalidSchedule, s.SubscriberID, s.Kind)
	}
}

func (m *Matcher) triggersIn(s Schedule, d Date, windowStart, windowEnd time.Time) (bool, error) {
	instant, err := m.normalizer.ToUTC(s.Timezone, d, s.LocalTime)
	if err != nil {
		return false, fmt.Errorf("subscriber %s: %w", s.SubscriberID, err)
	}
	return !instant.Before(windowStart) && instant.Before(windowEnd), nil
}

// localDates returns the subscriber-local calendar dates covered by the window, from the
// date at windowStart up to the date just before windowEnd.
func (m *Matcher) localDates(timezone string, windowStart, windowEnd time.Time) ([]Date, error) {
	loc, err := m.normalizer.Location(timezone)
	if err != nil {
		return nil, err
	}
	first := DateOf(windowStart.In(loc))
	last := DateOf(windowEnd.Add(-time.Nanosecond).In(loc))
	dates := []Date{first}
	for d := first; d != last; {
		d = d.AddDays(1)
		dates = append(dates, d)
	}
	return dates, nil
}
