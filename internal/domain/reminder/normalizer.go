// internal/domain/reminder/normalizer.go
package reminder

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCacheSize bounds the number of memoised (zone, date, time) conversions.
const DefaultCacheSize = 8192

type instantKey struct {
	timezone string
	date     Date
	at       LocalTime
}

// Normalizer converts subscriber-local wall-clock times into UTC instants.
//
// DST policy:
//   - a wall time inside a spring-forward gap resolves to the first instant after the gap;
//   - a wall time inside a fall-back overlap resolves with the earlier (pre-transition) offset;
//   - a day past the end of its month (Feb 29 in a non-leap year) is clamped to the last day.
//
// Conversions are pure, so results are memoised. The cache is dropped wholesale once it
// grows past its bound.
type Normalizer struct {
	mu         sync.Mutex
	locations  map[string]*time.Location
	instants   map[instantKey]time.Time
	maxEntries int
}

// NewNormalizer creates a Normalizer. maxEntries <= 0 selects DefaultCacheSize.
func NewNormalizer(maxEntries int) *Normalizer {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &Normalizer{
		locations:  make(map[string]*time.Location),
		instants:   make(map[instantKey]time.Time),
		maxEntries: maxEntries,
	}
}

// Location loads (and caches) an IANA zone.
func (n *Normalizer) Location(timezone string) (*time.Location, error) {
	name := strings.TrimSpace(timezone)
	// time.LoadLocation("") silently means UTC; an empty zone is a broken schedule.
	if name == "" {
		return nil, fmt.Errorf("%w: empty timezone", ErrTimezoneConversion)
	}

	n.mu.Lock()
	loc, ok := n.locations[name]
	n.mu.Unlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", ErrTimezoneConversion, name, err)
	}

	n.mu.Lock()
	n.locations[name] = loc
	n.mu.Unlock()
	return loc, nil
}

// ToUTC returns the instant at which the local wall-clock (date, at) occurs in timezone.
func (n *Normalizer) ToUTC(timezone string, date Date, at LocalTime) (time.Time, error) {
	if !at.Valid() {
		return time.Time{}, fmt.Errorf("%w: local time %s out of range", ErrInvalidSchedule, at)
	}
	date = date.Clamp()
	key := instantKey{timezone: timezone, date: date, at: at}

	n.mu.Lock()
	cached, ok := n.instants[key]
	n.mu.Unlock()
	if ok {
		return cached, nil
	}

	loc, err := n.Location(timezone)
	if err != nil {
		return time.Time{}, err
	}
	instant := resolve(loc, date, at)

	n.mu.Lock()
	if len(n.instants) >= n.maxEntries {
		n.instants = make(map[instantKey]time.Time)
	}
	n.instants[key] = instant
	n.mu.Unlock()
	return instant, nil
}

// resolve applies the DST policy. It assumes at most one offset change within a day of
// the wall time, which holds for every zone in the IANA database in practice.
func resolve(loc *time.Location, d Date, at LocalTime) time.Time {
	wall := time.Date(d.Year, d.Month, d.Day, at.Hour, at.Minute, 0, 0, time.UTC)
	_, before := wall.Add(-24 * time.Hour).In(loc).Zone()
	_, after := wall.Add(24 * time.Hour).In(loc).Zone()

	var best time.Time
	found := false
	for _, offset := range []int{before, after} {
		candidate := wall.Add(-time.Duration(offset) * time.Second)
		if _, actual := candidate.In(loc).Zone(); actual != offset {
			continue
		}
		// Both offsets valid means an overlap: the earlier instant carries the pre-transition offset.
		if !found || candidate.Before(best) {
			best, found = candidate, true
		}
	}
	if found {
		return best.UTC()
	}

	// Gap: reading the wall time with the old offset lands past the transition,
	// whose zone period starts at the first valid instant.
	past := wall.Add(-time.Duration(before) * time.Second)
	start, _ := past.In(loc).ZoneBounds()
	if start.IsZero() {
		return past.UTC()
	}
	return start.UTC()
}

// Slots lists every local (date, time) in timezone whose normalized instant can fall inside
// [windowStart, windowEnd). Besides the wall time of each minute in the window it includes
// the wall times skipped by a spring-forward transition starting in the window, since those
// resolve to the transition instant.
func (n *Normalizer) Slots(timezone string, windowStart, windowEnd time.Time) ([]Slot, error) {
	loc, err := n.Location(timezone)
	if err != nil {
		return nil, err
	}

	seen := make(map[Slot]struct{})
	var slots []Slot
	add := func(wall time.Time) {
		s := Slot{Date: DateOf(wall), Time: LocalTimeOf(wall)}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		slots = append(slots, s)
	}

	for m := windowStart.UTC().Truncate(time.Minute); m.Before(windowEnd); m = m.Add(time.Minute) {
		local := m.In(loc)
		add(local)

		start, _ := local.ZoneBounds()
		if !start.Equal(m) {
			continue
		}
		_, current := local.Zone()
		_, previous := m.Add(-time.Nanosecond).In(loc).Zone()
		if current <= previous {
			continue
		}
		wall := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, time.UTC)
		for w := wall.Add(-time.Duration(current-previous) * time.Second); w.Before(wall); w = w.Add(time.Minute) {
			add(w)
		}
	}
	return slots, nil
}
