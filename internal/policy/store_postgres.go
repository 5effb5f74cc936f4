package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

const Schema = `
CREATE TABLE IF NOT EXISTS pass_policies (
	student_category TEXT NOT NULL,
	pass_category TEXT NOT NULL,
	work_from_hour INT,
	work_to_hour INT,
	holiday_behavior TEXT NOT NULL,
	holiday_from_hour INT,
	holiday_to_hour INT,
	max_duration_hours DOUBLE PRECISION,
	gate_action TEXT NOT NULL,
	PRIMARY KEY (student_category, pass_category)
);

CREATE TABLE IF NOT EXISTS calendar_exceptions (
	date DATE PRIMARY KEY,
	label TEXT NOT NULL
);
`

// PostgresStore persists policy rows keyed by (student_category,
// pass_category).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, sc domain.StudentCategory, pc domain.PassCategory) (Policy, error) {
	const query = `
		SELECT student_category, pass_category,
		       work_from_hour, work_to_hour,
		       holiday_behavior, holiday_from_hour, holiday_to_hour,
		       max_duration_hours, gate_action
		FROM pass_policies
		WHERE student_category = $1 AND pass_category = $2
	`
	var (
		p                      Policy
		workFrom, workTo       sql.NullInt64
		holidayFrom, holidayTo sql.NullInt64
		maxDuration            sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query, sc, pc).Scan(
		&p.StudentCategory, &p.PassCategory,
		&workFrom, &workTo,
		&p.HolidayBehavior, &holidayFrom, &holidayTo,
		&maxDuration, &p.GateAction,
	)
	if err == sql.ErrNoRows {
		return Policy{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Policy{}, fmt.Errorf("find policy: %w", err)
	}
	if workFrom.Valid && workTo.Valid {
		p.WorkingHours = &Window{FromHour: int(workFrom.Int64), ToHour: int(workTo.Int64)}
	}
	if holidayFrom.Valid && holidayTo.Valid {
		p.HolidayWindow = &Window{FromHour: int(holidayFrom.Int64), ToHour: int(holidayTo.Int64)}
	}
	if maxDuration.Valid {
		p.MaxDurationHours = maxDuration.Float64
	}
	return p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p Policy) error {
	const query = `
		INSERT INTO pass_policies (
			student_category, pass_category,
			work_from_hour, work_to_hour,
			holiday_behavior, holiday_from_hour, holiday_to_hour,
			max_duration_hours, gate_action
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_category, pass_category) DO UPDATE SET
			work_from_hour = EXCLUDED.work_from_hour,
			work_to_hour = EXCLUDED.work_to_hour,
			holiday_behavior = EXCLUDED.holiday_behavior,
			holiday_from_hour = EXCLUDED.holiday_from_hour,
			holiday_to_hour = EXCLUDED.holiday_to_hour,
			max_duration_hours = EXCLUDED.max_duration_hours,
			gate_action = EXCLUDED.gate_action
	`
	var workFrom, workTo, holidayFrom, holidayTo any
	if p.WorkingHours != nil {
		workFrom, workTo = p.WorkingHours.FromHour, p.WorkingHours.ToHour
	}
	if p.HolidayWindow != nil {
		holidayFrom, holidayTo = p.HolidayWindow.FromHour, p.HolidayWindow.ToHour
	}
	var maxDuration any
	if p.MaxDurationHours > 0 {
		maxDuration = p.MaxDurationHours
	}
	_, err := s.db.ExecContext(ctx, query,
		p.StudentCategory, p.PassCategory,
		workFrom, workTo,
		p.HolidayBehavior, holidayFrom, holidayTo,
		maxDuration, p.GateAction,
	)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

// PostgresCalendar persists calendar exceptions.
type PostgresCalendar struct {
	db *sql.DB
}

func NewPostgresCalendar(db *sql.DB) *PostgresCalendar {
	return &PostgresCalendar{db: db}
}

func (s *PostgresCalendar) IsException(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM calendar_exceptions WHERE date = $1)`,
		date.Format("2006-01-02"),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check calendar exception: %w", err)
	}
	return exists, nil
}

func (s *PostgresCalendar) AddException(ctx context.Context, ex CalendarException) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_exceptions (date, label)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET label = EXCLUDED.label
	`, ex.Date.Format("2006-01-02"), ex.Label)
	if err != nil {
		return fmt.Errorf("add calendar exception: %w", err)
	}
	return nil
}
