package database

import (
	"context"
	"database/sql"
	"fmt"

	"reminder_engine/internal/domain/reminder"

	"github.com/lib/pq"
)

// Schema of the table the store reads. The engine never writes to it.
const Schema = `CREATE TABLE IF NOT EXISTS reminder_schedules (
    subscriber_id TEXT        NOT NULL,
    contact       TEXT        NOT NULL,
    kind          TEXT        NOT NULL CHECK (kind IN ('NONE', 'DAILY', 'WEEKLY', 'MONTHLY', 'YEARLY')),
    local_time    CHAR(5)     NOT NULL,
    anchor_dates  DATE[]      NOT NULL DEFAULT '{}',
    timezone      TEXT        NOT NULL,
    active        BOOLEAN     NOT NULL DEFAULT TRUE,
    PRIMARY KEY (subscriber_id, kind)
);
CREATE INDEX IF NOT EXISTS reminder_schedules_probe_idx
    ON reminder_schedules (kind, timezone, local_time) WHERE active;`

const candidatesQuery = `SELECT DISTINCT s.subscriber_id, s.contact, s.kind, s.local_time,
       s.anchor_dates::text[], s.timezone, s.active
  FROM reminder_schedules s
  JOIN unnest($1::text[], $2::date[], $3::text[]) AS p(timezone, local_date, local_time)
    ON p.timezone = s.timezone AND p.local_time = s.local_time
 WHERE s.active AND s.kind = $4 AND (%s)
 ORDER BY s.subscriber_id`

// Day-of-month of the last day of the probe's month.
const probeMonthEnd = `EXTRACT(DAY FROM (date_trunc('month', p.local_date) + interval '1 month - 1 day'))`

// kindCondition narrows a kind's schedules to those whose calendar rule selects the probe date.
// Each branch mirrors reminder.Schedule.OccursOn; the matcher still has the final word.
func kindCondition(kind reminder.Kind) (string, error) {
	switch kind {
	case reminder.KindNone:
		return `p.local_date = ANY(s.anchor_dates)`, nil
	case reminder.KindDaily:
		return `TRUE`, nil
	case reminder.KindWeekly:
		return `EXTRACT(ISODOW FROM s.anchor_dates[1]) = EXTRACT(ISODOW FROM p.local_date)`, nil
	case reminder.KindMonthly:
		return `LEAST(EXTRACT(DAY FROM s.anchor_dates[1]), ` + probeMonthEnd + `) = EXTRACT(DAY FROM p.local_date)`, nil
	case reminder.KindYearly:
		return `EXTRACT(MONTH FROM s.anchor_dates[1]) = EXTRACT(MONTH FROM p.local_date)
       AND LEAST(EXTRACT(DAY FROM s.anchor_dates[1]), ` + probeMonthEnd + `) = EXTRACT(DAY FROM p.local_date)`, nil
	default:
		return "", fmt.Errorf("%w: no store query for kind %q", reminder.ErrInvalidSchedule, kind)
	}
}

type PostgresScheduleStore struct {
	db *sql.DB
}

func NewPostgresScheduleStore(db *sql.DB) *PostgresScheduleStore {
	return &PostgresScheduleStore{db: db}
}

func (r *PostgresScheduleStore) Timezones(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT timezone FROM reminder_schedules WHERE active ORDER BY timezone`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing timezones: %w", err)
	}
	defer rows.Close()

	var zones []string
	for rows.Next() {
		var tz string
		if err := rows.Scan(&tz); err != nil {
			return nil, fmt.Errorf("error scanning timezone: %w", err)
		}
		zones = append(zones, tz)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timezones: %w", err)
	}
	return zones, nil
}

func (r *PostgresScheduleStore) ListCandidates(ctx context.Context, kind reminder.Kind, probes []reminder.Probe) ([]reminder.Schedule, error) {
	query, args, err := candidatesStatement(kind, probes)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s candidates: %w", kind, err)
	}
	defer rows.Close()

	var schedules []reminder.Schedule
	for rows.Next() {
		var (
			s         reminder.Schedule
			kindRaw   string
			localTime string
			anchors   pq.StringArray
		)
		if err := rows.Scan(&s.SubscriberID, &s.Contact, &kindRaw, &localTime, &anchors, &s.Timezone, &s.Active); err != nil {
			return nil, fmt.Errorf("error scanning %s candidate: %w", kind, err)
		}
		if s.Kind, err = reminder.ParseKind(kindRaw); err != nil {
			return nil, err
		}
		if s.LocalTime, err = reminder.ParseLocalTime(localTime); err != nil {
			return nil, fmt.Errorf("subscriber %s: %w", s.SubscriberID, err)
		}
		for _, raw := range anchors {
			d, err := reminder.ParseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("subscriber %s: %w", s.SubscriberID, err)
			}
			s.AnchorDates = append(s.AnchorDates, d)
		}
		schedules = append(schedules, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s candidates: %w", kind, err)
	}
	return schedules, nil
}

// candidatesStatement flattens probes into three parallel arrays for unnest.
// An empty query means there is nothing to look up.
func candidatesStatement(kind reminder.Kind, probes []reminder.Probe) (string, []any, error) {
	cond, err := kindCondition(kind)
	if err != nil {
		return "", nil, err
	}

	var zones, dates, times []string
	for _, p := range probes {
		for _, slot := range p.Slots {
			zones = append(zones, p.Timezone)
			dates = append(dates, slot.Date.String())
			times = append(times, slot.Time.String())
		}
	}
	if len(zones) == 0 {
		return "", nil, nil
	}
	return fmt.Sprintf(candidatesQuery, cond), []any{pq.Array(zones), pq.Array(dates), pq.Array(times), string(kind)}, nil
}
