package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date as given; use Clamp to normalise an out-of-range day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf returns the wall-clock date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD. Non-existent dates (2023-02-29) are rejected.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q: %v", ErrInvalidSchedule, raw, err)
	}
	return DateOf(t), nil
}

// DaysIn returns the number of days of month in year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Clamp moves a day past the end of its month onto the month's last day.
// Feb 29 in a non-leap year becomes Feb 28.
func (d Date) Clamp() Date {
	if last := DaysIn(d.Year, d.Month); d.Day > last {
		d.Day = last
	}
	return d
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Weekday of the (clamped) date.
func (d Date) Weekday() time.Weekday {
	c := d.Clamp()
	return time.Date(c.Year, c.Month, c.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// LocalTime is a wall-clock time of day with minute resolution.
// Seconds are not representable: the engine ticks once per minute.
type LocalTime struct {
	Hour   int
	Minute int
}

// ParseLocalTime parses HH:MM. Anything finer than a minute is rejected.
func ParseLocalTime(raw string) (LocalTime, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return LocalTime{}, fmt.Errorf("%w: invalid local time %q, expected HH:MM", ErrInvalidSchedule, raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return LocalTime{}, fmt.Errorf("%w: invalid hour in %q", ErrInvalidSchedule, raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return LocalTime{}, fmt.Errorf("%w: invalid minute in %q", ErrInvalidSchedule, raw)
	}
	return LocalTime{Hour: h, Minute: m}, nil
}

// LocalTimeOf returns the wall-clock time of day of t, truncated to the minute.
func LocalTimeOf(t time.Time) LocalTime {
	return LocalTime{Hour: t.Hour(), Minute: t.Minute()}
}

// Valid reports whether the time of day is in range.
func (t LocalTime) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
