// internal/domain/reminder/schedule.go
package reminder

import (
	"fmt"
	"strings"
)

// Schedule is one subscriber's reminder opt-in.
// The engine only reads schedules; they are owned by the configuration API.
type Schedule struct {
	SubscriberID string
	Contact      string // contact identity used as the batch recipient
	Kind         Kind
	LocalTime    LocalTime
	AnchorDates  []Date // NONE: every date it fires on. Recurring kinds: the first entry is the anchor.
	Timezone     string // IANA zone name
	Active       bool
}

// Validate checks the structural rules that do not need a time zone database.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.SubscriberID) == "" {
		return fmt.Errorf("%w: empty subscriber id", ErrInvalidSchedule)
	}
	if strings.TrimSpace(s.Contact) == "" {
		return fmt.Errorf("%w: subscriber %s: empty contact", ErrInvalidSchedule, s.SubscriberID)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: subscriber %s: unknown recurrence kind %q", ErrInvalidSchedule, s.SubscriberID, s.Kind)
	}
	if !s.LocalTime.Valid() {
		return fmt.Errorf("%w: subscriber %s: local time %s out of range", ErrInvalidSchedule, s.SubscriberID, s.LocalTime)
	}
	if strings.TrimSpace(s.Timezone) == "" {
		return fmt.Errorf("%w: subscriber %s: empty timezone", ErrInvalidSchedule, s.SubscriberID)
	}
	switch s.Kind {
	case KindNone, KindWeekly, KindMonthly, KindYearly:
		if len(s.AnchorDates) == 0 {
			return fmt.Errorf("%w: subscriber %s: %s schedule needs an anchor date", ErrInvalidSchedule, s.SubscriberID, s.Kind)
		}
	case KindDaily:
	}
	return nil
}

// Anchor returns the reference date of a recurring schedule.
func (s Schedule) Anchor() (Date, error) {
	if len(s.AnchorDates) == 0 {
		return Date{}, fmt.Errorf("%w: subscriber %s: missing anchor date", ErrInvalidSchedule, s.SubscriberID)
	}
	return s.AnchorDates[0], nil
}

// OccursOn reports whether the schedule's calendar rule selects the local date d.
// It says nothing about the time of day; the matcher checks that.
func (s Schedule) OccursOn(d Date) (bool, error) {
	switch s.Kind {
	case KindNone:
		for _, a := range s.AnchorDates {
			if a.Clamp() == d {
				return true, nil
			}
		}
		return false, nil
	case KindDaily:
		return true, nil
	case KindWeekly:
		a, err := s.Anchor()
		if err != nil {
			return false, err
		}
		return a.Weekday() == d.Weekday(), nil
	case KindMonthly:
		a, err := s.Anchor()
		if err != nil {
			return false, err
		}
		return NewDate(d.Year, d.Month, a.Day).Clamp().Day == d.Day, nil
	case KindYearly:
		a, err := s.Anchor()
		if err != nil {
			return false, err
		}
		if a.Month != d.Month {
			return false, nil
		}
		return NewDate(d.Year, a.Month, a.Day).Clamp().Day == d.Day, nil
	default:
		return false, fmt.Errorf("%w: subscriber %s: unknown recurrence kind %q", ErrInvalidSchedule, s.SubscriberID, s.Kind)
	}
}

// Outcome is the per-schedule result collected by a sweep.
// A failed evaluation is a value, not an abort: Err is set and Fired is false.
type Outcome struct {
	Schedule Schedule
	Fired    bool
	Err      error
}
