package gate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

const Schema = `
CREATE TABLE IF NOT EXISTS gate_logs (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL,
	action TEXT NOT NULL,
	gatekeeper_id UUID NOT NULL,
	at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS gate_logs_request ON gate_logs (request_id, at);
`

type PostgresLogStore struct {
	db *sql.DB
}

func NewPostgresLogStore(db *sql.DB) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

func (s *PostgresLogStore) Append(ctx context.Context, log Log) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gate_logs (id, request_id, action, gatekeeper_id, at)
		VALUES ($1, $2, $3, $4, $5)
	`, log.ID, uuid.UUID(log.RequestID), string(log.Action), uuid.UUID(log.GatekeeperID), log.At)
	if err != nil {
		return fmt.Errorf("insert gate log: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) Latest(ctx context.Context, requestID domain.PassID) (Log, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, action, gatekeeper_id, at
		FROM gate_logs WHERE request_id = $1
		ORDER BY at DESC LIMIT 1
	`, uuid.UUID(requestID))
	log, err := scanLog(row)
	if err == sql.ErrNoRows {
		return Log{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Log{}, fmt.Errorf("find latest gate log: %w", err)
	}
	return log, nil
}

func (s *PostgresLogStore) ListByRequest(ctx context.Context, requestID domain.PassID) ([]Log, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, action, gatekeeper_id, at
		FROM gate_logs WHERE request_id = $1
		ORDER BY at
	`, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list gate logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gate log: %w", err)
		}
		out = append(out, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gate logs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (Log, error) {
	var (
		log                   Log
		requestID, gatekeeper uuid.UUID
		action                string
	)
	if err := row.Scan(&log.ID, &requestID, &action, &gatekeeper, &log.At); err != nil {
		return Log{}, err
	}
	log.RequestID = domain.PassID(requestID)
	log.GatekeeperID = domain.StaffID(gatekeeper)
	log.Action = Action(action)
	return log, nil
}
