package request

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// Schema is the DDL this store expects; integration tests apply it to a
// fresh container and ops keep migrations/ in sync with it.
const Schema = `
CREATE TABLE IF NOT EXISTS pass_requests (
	id UUID PRIMARY KEY,
	student_id UUID NOT NULL,
	category TEXT NOT NULL,
	reason TEXT NOT NULL,
	departure_at TIMESTAMPTZ NOT NULL,
	return_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	forwarded_to UUID,
	token_digest TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS pass_requests_one_open
	ON pass_requests (student_id)
	WHERE status NOT IN ('completed', 'rejected', 'cancelled', 'expired');
CREATE INDEX IF NOT EXISTS pass_requests_status ON pass_requests (status);
CREATE INDEX IF NOT EXISTS pass_requests_token_digest
	ON pass_requests (token_digest) WHERE token_digest <> '';

CREATE TABLE IF NOT EXISTS group_restrictions (
	id BIGSERIAL PRIMARY KEY,
	department_id UUID,
	category TEXT,
	reason TEXT NOT NULL,
	from_at TIMESTAMPTZ NOT NULL,
	to_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists pass requests. The single-open-request rule is
// backed by a partial unique index on (student_id) WHERE status NOT IN the
// terminal set, and every status move is a conditional UPDATE checked via
// RowsAffected.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, student_id, category, reason, departure_at, return_at, status, forwarded_to, token_digest, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, req PassRequest) error {
	var forwardedTo any
	if req.ForwardedTo != nil {
		forwardedTo = uuid.UUID(*req.ForwardedTo)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pass_requests (id, student_id, category, reason, departure_at, return_at, status, forwarded_to, token_digest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(req.ID), uuid.UUID(req.StudentID), string(req.Category), req.Reason,
		req.DepartureAt, req.ReturnAt, string(req.Status), forwardedTo, req.TokenDigest,
		req.CreatedAt, req.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return sentinel.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert pass request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.PassID) (PassRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM pass_requests WHERE id = $1`, uuid.UUID(id))
	return scanRequest(row)
}

func (s *PostgresStore) FindOpenByStudent(ctx context.Context, studentID domain.StudentID) (PassRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM pass_requests
		WHERE student_id = $1 AND status NOT IN ('completed', 'rejected', 'cancelled', 'expired')
	`, uuid.UUID(studentID))
	return scanRequest(row)
}

func (s *PostgresStore) FindByTokenDigest(ctx context.Context, digest string) (PassRequest, error) {
	if digest == "" {
		return PassRequest{}, sentinel.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM pass_requests WHERE token_digest = $1`, digest)
	return scanRequest(row)
}

func (s *PostgresStore) Transition(ctx context.Context, id domain.PassID, from, to Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pass_requests SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, uuid.UUID(id), string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("transition pass request: %w", err)
	}
	return s.checkGuard(ctx, res, id)
}

func (s *PostgresStore) TransitionWithToken(ctx context.Context, id domain.PassID, from, to Status, tokenDigest string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pass_requests SET status = $3, token_digest = $4, updated_at = $5
		WHERE id = $1 AND status = $2
	`, uuid.UUID(id), string(from), string(to), tokenDigest, at)
	if err != nil {
		return fmt.Errorf("transition pass request: %w", err)
	}
	return s.checkGuard(ctx, res, id)
}

func (s *PostgresStore) UpdateDetails(ctx context.Context, id domain.PassID, expected Status, upd DetailsUpdate, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pass_requests
		SET category = $3, reason = $4, departure_at = $5, return_at = $6, updated_at = $7
		WHERE id = $1 AND status = $2
	`, uuid.UUID(id), string(expected), string(upd.Category), upd.Reason, upd.DepartureAt, upd.ReturnAt, at)
	if err != nil {
		return fmt.Errorf("update pass request details: %w", err)
	}
	return s.checkGuard(ctx, res, id)
}

func (s *PostgresStore) SetForwarded(ctx context.Context, id domain.PassID, expected Status, to domain.StaffID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pass_requests SET forwarded_to = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, uuid.UUID(id), string(expected), uuid.UUID(to), at)
	if err != nil {
		return fmt.Errorf("set forwarding override: %w", err)
	}
	return s.checkGuard(ctx, res, id)
}

// checkGuard distinguishes a lost race from a missing row when a guarded
// update touched nothing.
func (s *PostgresStore) checkGuard(ctx context.Context, res sql.Result, id domain.PassID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pass_requests WHERE id = $1)`, uuid.UUID(id),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check pass request existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) ListByStudent(ctx context.Context, studentID domain.StudentID) ([]PassRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM pass_requests
		WHERE student_id = $1 ORDER BY created_at
	`, uuid.UUID(studentID))
	if err != nil {
		return nil, fmt.Errorf("list pass requests by student: %w", err)
	}
	return scanRequests(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...Status) ([]PassRequest, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM pass_requests
		WHERE status = ANY($1) ORDER BY created_at
	`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list pass requests by status: %w", err)
	}
	return scanRequests(rows)
}

func (s *PostgresStore) CountCreatedBetween(ctx context.Context, studentID domain.StudentID, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pass_requests
		WHERE student_id = $1 AND created_at >= $2 AND created_at < $3
	`, uuid.UUID(studentID), from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pass requests: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ExpireReturnLapsed(ctx context.Context, now time.Time) ([]PassRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE pass_requests SET status = 'expired', updated_at = $1
		WHERE status IN ('pending', 'approved_stage1', 'approved_stage2', 'approved_final')
		  AND return_at < $1
		RETURNING `+requestColumns, now)
	if err != nil {
		return nil, fmt.Errorf("expire return-lapsed requests: %w", err)
	}
	return scanRequests(rows)
}

func (s *PostgresStore) ExpireNeverExited(ctx context.Context, cutoff, now time.Time) ([]PassRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE pass_requests SET status = 'expired', updated_at = $2
		WHERE status IN ('approved_stage1', 'approved_stage2', 'approved_final')
		  AND departure_at < $1
		RETURNING `+requestColumns, cutoff, now)
	if err != nil {
		return nil, fmt.Errorf("expire never-exited requests: %w", err)
	}
	return scanRequests(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (PassRequest, error) {
	var (
		req         PassRequest
		id, student uuid.UUID
		category    string
		status      string
		forwardedTo uuid.NullUUID
	)
	err := row.Scan(&id, &student, &category, &req.Reason, &req.DepartureAt, &req.ReturnAt,
		&status, &forwardedTo, &req.TokenDigest, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return PassRequest{}, sentinel.ErrNotFound
	}
	if err != nil {
		return PassRequest{}, fmt.Errorf("scan pass request: %w", err)
	}
	req.ID = domain.PassID(id)
	req.StudentID = domain.StudentID(student)
	req.Category = domain.PassCategory(category)
	req.Status = Status(status)
	if forwardedTo.Valid {
		staff := domain.StaffID(forwardedTo.UUID)
		req.ForwardedTo = &staff
	}
	return req, nil
}

func scanRequests(rows *sql.Rows) ([]PassRequest, error) {
	defer rows.Close()
	var out []PassRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pass requests: %w", err)
	}
	return out, nil
}
