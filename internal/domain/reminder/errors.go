package reminder

import "errors"

// Failure taxonomy of a sweep. Callers match with errors.Is.
var (
	// ErrStoreUnavailable aborts the current sweep; the next tick is unaffected.
	ErrStoreUnavailable = errors.New("recurrence store unavailable")
	// ErrTimezoneConversion is isolated to the schedule (or probe zone) that caused it.
	ErrTimezoneConversion = errors.New("timezone conversion failed")
	// ErrInvalidSchedule marks a structurally broken schedule; it is skipped like a timezone error.
	ErrInvalidSchedule = errors.New("invalid reminder schedule")
	// ErrPublish drops the batch for the tick. There is no in-engine retry.
	ErrPublish = errors.New("reminder batch publish failed")
	// ErrConcurrencyViolation describes a tick that arrived mid-sweep and was coalesced.
	ErrConcurrencyViolation = errors.New("tick arrived while a sweep was running")
)
