// internal/domain/reminder/kind.go
package reminder

import (
	"fmt"
	"strings"
)

// Kind is the repetition pattern of a reminder schedule.
// It travels across boundaries (store rows, YAML seeds, logs) by name, never by ordinal.
type Kind string

const (
	KindNone    Kind = "NONE"    // one-off, fires on each anchor date
	KindDaily   Kind = "DAILY"   // every local day
	KindWeekly  Kind = "WEEKLY"  // on the anchor's weekday
	KindMonthly Kind = "MONTHLY" // on the anchor's day-of-month, clamped to short months
	KindYearly  Kind = "YEARLY"  // on the anchor's month and day
)

// Kinds returns every recurrence kind in sweep order.
func Kinds() []Kind {
	return []Kind{KindNone, KindDaily, KindWeekly, KindMonthly, KindYearly}
}

// ParseKind converts a stored or configured name into a Kind.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown recurrence kind %q", ErrInvalidSchedule, raw)
	}
	return k, nil
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNone, KindDaily, KindWeekly, KindMonthly, KindYearly:
		return true
	default:
		return false
	}
}

// Recurring reports whether the kind repeats (everything except NONE).
func (k Kind) Recurring() bool {
	return k.Valid() && k != KindNone
}

func (k Kind) String() string { return string(k) }
