package database

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"reminder_engine/internal/domain/reminder"

	"gopkg.in/yaml.v3"
)

// scheduleFile is the YAML layout of a schedules seed file.
type scheduleFile struct {
	Schedules []scheduleRecord `yaml:"schedules"`
}

type scheduleRecord struct {
	SubscriberID string   `yaml:"subscriber_id"`
	Contact      string   `yaml:"contact"`
	Kind         string   `yaml:"kind"`
	LocalTime    string   `yaml:"local_time"`
	AnchorDates  []string `yaml:"anchor_dates"`
	Timezone     string   `yaml:"timezone"`
	Active       *bool    `yaml:"active"` // defaults to true
}

// ParseSchedules decodes a YAML seed document.
func ParseSchedules(data []byte) ([]reminder.Schedule, error) {
	var doc scheduleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error decoding schedules: %w", err)
	}

	schedules := make([]reminder.Schedule, 0, len(doc.Schedules))
	for i, rec := range doc.Schedules {
		s := reminder.Schedule{
			SubscriberID: rec.SubscriberID,
			Contact:      rec.Contact,
			Timezone:     rec.Timezone,
			Active:       rec.Active == nil || *rec.Active,
		}
		var err error
		if s.Kind, err = reminder.ParseKind(rec.Kind); err != nil {
			return nil, fmt.Errorf("schedule #%d: %w", i, err)
		}
		if s.LocalTime, err = reminder.ParseLocalTime(rec.LocalTime); err != nil {
			return nil, fmt.Errorf("schedule #%d: %w", i, err)
		}
		for _, raw := range rec.AnchorDates {
			d, err := reminder.ParseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("schedule #%d: %w", i, err)
			}
			s.AnchorDates = append(s.AnchorDates, d)
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// MemoryScheduleStore serves schedules held in memory, optionally seeded from a YAML file.
type MemoryScheduleStore struct {
	mu        sync.RWMutex
	path      string
	schedules []reminder.Schedule
}

func NewMemoryScheduleStore(schedules ...reminder.Schedule) *MemoryScheduleStore {
	return &MemoryScheduleStore{schedules: schedules}
}

// LoadMemoryScheduleStore reads the seed file at path. Reload re-reads the same file.
func LoadMemoryScheduleStore(path string) (*MemoryScheduleStore, error) {
	s := &MemoryScheduleStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload swaps in the current file contents. On error the previous schedules stay in place.
func (s *MemoryScheduleStore) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("error reading schedules file: %w", err)
	}
	schedules, err := ParseSchedules(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.Replace(schedules)
	return nil
}

func (s *MemoryScheduleStore) Replace(schedules []reminder.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = schedules
}

func (s *MemoryScheduleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.schedules)
}

func (s *MemoryScheduleStore) Timezones(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zones []string
	for _, sched := range s.schedules {
		if sched.Active && !slices.Contains(zones, sched.Timezone) {
			zones = append(zones, sched.Timezone)
		}
	}
	slices.Sort(zones)
	return zones, nil
}

// ListCandidates applies the same narrowing as the Postgres query. Schedules whose calendar
// rule cannot be evaluated are returned so the matcher reports them.
func (s *MemoryScheduleStore) ListCandidates(ctx context.Context, kind reminder.Kind, probes []reminder.Probe) ([]reminder.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reminder.Schedule
	for _, sched := range s.schedules {
		if !sched.Active || sched.Kind != kind {
			continue
		}
		if probed(sched, probes) {
			out = append(out, sched)
		}
	}
	return out, nil
}

func probed(sched reminder.Schedule, probes []reminder.Probe) bool {
	for _, p := range probes {
		if p.Timezone != sched.Timezone {
			continue
		}
		for _, slot := range p.Slots {
			if slot.Time != sched.LocalTime {
				continue
			}
			if ok, err := sched.OccursOn(slot.Date); ok || err != nil {
				return true
			}
		}
	}
	return false
}
