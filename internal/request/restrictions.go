package request

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatepass/internal/directory"
	"gatepass/pkg/domain"
)

// Restriction is a blanket block on new requests for a department or a whole
// student category, active inside its window. Exam weeks, campus lockdowns.
type Restriction struct {
	DepartmentID *domain.DepartmentID
	Category     *domain.StudentCategory
	Reason       string
	From         time.Time
	To           time.Time
}

// Covers reports whether the restriction applies to the student at t.
func (r Restriction) Covers(student directory.StudentProfile, t time.Time) bool {
	if t.Before(r.From) || t.After(r.To) {
		return false
	}
	if r.DepartmentID != nil && *r.DepartmentID != student.DepartmentID {
		return false
	}
	if r.Category != nil && *r.Category != student.Category {
		return false
	}
	return true
}

// RestrictionStore lists blanket blocks. Reads are on the create path, so
// implementations keep the query narrow.
type RestrictionStore interface {
	ActiveFor(ctx context.Context, student directory.StudentProfile, t time.Time) ([]Restriction, error)
	Add(ctx context.Context, r Restriction) error
}

type InMemoryRestrictions struct {
	mu           sync.RWMutex
	restrictions []Restriction
}

func NewInMemoryRestrictions() *InMemoryRestrictions {
	return &InMemoryRestrictions{}
}

func (s *InMemoryRestrictions) ActiveFor(_ context.Context, student directory.StudentProfile, t time.Time) ([]Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Restriction
	for _, r := range s.restrictions {
		if r.Covers(student, t) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryRestrictions) Add(_ context.Context, r Restriction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restrictions = append(s.restrictions, r)
	return nil
}

type PostgresRestrictions struct {
	db *sql.DB
}

func NewPostgresRestrictions(db *sql.DB) *PostgresRestrictions {
	return &PostgresRestrictions{db: db}
}

func (s *PostgresRestrictions) ActiveFor(ctx context.Context, student directory.StudentProfile, t time.Time) ([]Restriction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT department_id, category, reason, from_at, to_at
		FROM group_restrictions
		WHERE from_at <= $3 AND to_at >= $3
		  AND (department_id IS NULL OR department_id = $1)
		  AND (category IS NULL OR category = $2)
	`, uuid.UUID(student.DepartmentID), string(student.Category), t)
	if err != nil {
		return nil, fmt.Errorf("list group restrictions: %w", err)
	}
	defer rows.Close()

	var out []Restriction
	for rows.Next() {
		var (
			r        Restriction
			dept     uuid.NullUUID
			category sql.NullString
		)
		if err := rows.Scan(&dept, &category, &r.Reason, &r.From, &r.To); err != nil {
			return nil, fmt.Errorf("scan group restriction: %w", err)
		}
		if dept.Valid {
			id := domain.DepartmentID(dept.UUID)
			r.DepartmentID = &id
		}
		if category.Valid {
			c := domain.StudentCategory(category.String)
			r.Category = &c
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group restrictions: %w", err)
	}
	return out, nil
}

func (s *PostgresRestrictions) Add(ctx context.Context, r Restriction) error {
	var (
		dept     any
		category any
	)
	if r.DepartmentID != nil {
		dept = uuid.UUID(*r.DepartmentID)
	}
	if r.Category != nil {
		category = string(*r.Category)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_restrictions (department_id, category, reason, from_at, to_at)
		VALUES ($1, $2, $3, $4, $5)
	`, dept, category, r.Reason, r.From, r.To)
	if err != nil {
		return fmt.Errorf("insert group restriction: %w", err)
	}
	return nil
}
