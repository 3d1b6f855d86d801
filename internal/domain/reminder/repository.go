// internal/domain/reminder/repository.go
package reminder

import "context"

// Slot is a local wall-clock date and time of day in some zone.
type Slot struct {
	Date Date
	Time LocalTime
}

// Probe lists the local slots of one time zone that map into the current tick window.
// WEEKLY/MONTHLY/YEARLY stores derive the calendar field they filter on from Slot.Date.
type Probe struct {
	Timezone string
	Slots    []Slot
}

// Store is the read-only recurrence store.
type Store interface {
	// Timezones lists the distinct zones used by active schedules.
	Timezones(ctx context.Context) ([]string, error)
	// ListCandidates returns active schedules of the given kind whose zone, local time
	// and calendar rule match one of the probes. Results are candidates: the matcher
	// makes the final decision.
	ListCandidates(ctx context.Context, kind Kind, probes []Probe) ([]Schedule, error)
}
