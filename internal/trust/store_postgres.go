package trust

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gatepass/pkg/domain"
)

const Schema = `
CREATE TABLE IF NOT EXISTS trust_scores (
	actor_id UUID PRIMARY KEY,
	score INT NOT NULL
);

CREATE TABLE IF NOT EXISTS trust_adjustments (
	id BIGSERIAL PRIMARY KEY,
	actor_id UUID NOT NULL,
	adjuster_id TEXT NOT NULL,
	old_score INT NOT NULL,
	new_score INT NOT NULL,
	delta INT NOT NULL,
	reason TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trust_adjustments_actor ON trust_adjustments (actor_id, created_at);
`

// PostgresStore persists scores in trust_scores and the ledger in
// trust_adjustments. Apply runs both writes in one transaction so the ledger
// never disagrees with the score column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Score(ctx context.Context, actorID domain.StudentID) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM trust_scores WHERE actor_id = $1`,
		uuid.UUID(actorID),
	).Scan(&score)
	if err == sql.ErrNoRows {
		return DefaultScore, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get trust score: %w", err)
	}
	return score, nil
}

func (s *PostgresStore) Apply(ctx context.Context, adj Adjustment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trust apply: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trust_scores (actor_id, score)
		VALUES ($1, $2)
		ON CONFLICT (actor_id) DO UPDATE SET score = EXCLUDED.score
	`, uuid.UUID(adj.ActorID), adj.NewScore)
	if err != nil {
		return fmt.Errorf("upsert trust score: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trust_adjustments (actor_id, adjuster_id, old_score, new_score, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(adj.ActorID), adj.AdjusterID, adj.OldScore, adj.NewScore, adj.Delta, adj.Reason, adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("append trust adjustment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trust apply: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, actorID domain.StudentID) ([]Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor_id, adjuster_id, old_score, new_score, delta, reason, created_at
		FROM trust_adjustments
		WHERE actor_id = $1
		ORDER BY created_at
	`, uuid.UUID(actorID))
	if err != nil {
		return nil, fmt.Errorf("list trust adjustments: %w", err)
	}
	defer rows.Close()

	var history []Adjustment
	for rows.Next() {
		var (
			adj Adjustment
			id  uuid.UUID
		)
		if err := rows.Scan(&id, &adj.AdjusterID, &adj.OldScore, &adj.NewScore, &adj.Delta, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trust adjustment: %w", err)
		}
		adj.ActorID = domain.StudentID(id)
		history = append(history, adj)
	}
	return history, rows.Err()
}
