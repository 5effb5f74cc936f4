package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const Schema = `
CREATE TABLE IF NOT EXISTS notification_outbox (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS notification_outbox_order ON notification_outbox (created_at);
`

// PostgresOutbox implements the transactional outbox over a notification_outbox
// table. The worker is the only reader; published rows are deleted rather
// than flagged so the table stays small.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

func (s *PostgresOutbox) Append(ctx context.Context, entry OutboxEntry) error {
	payload, err := json.Marshal(entry.Event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_outbox (id, event_type, payload, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.Event.Type, payload, entry.Attempts, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresOutbox) NextBatch(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, attempts, created_at
		FROM notification_outbox
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox batch: %w", err)
	}
	defer rows.Close()

	var batch []OutboxEntry
	for rows.Next() {
		var (
			entry     OutboxEntry
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&entry.ID, &payload, &entry.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return nil, fmt.Errorf("unmarshal outbox event: %w", err)
		}
		entry.CreatedAt = createdAt
		batch = append(batch, entry)
	}
	return batch, rows.Err()
}

func (s *PostgresOutbox) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notification_outbox WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete published outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresOutbox) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notification_outbox SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox entry failed: %w", err)
	}
	return nil
}
