package escalation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

const Schema = `
CREATE TABLE IF NOT EXISTS staff_leaves (
	id BIGSERIAL PRIMARY KEY,
	actor_id UUID NOT NULL,
	from_at TIMESTAMPTZ NOT NULL,
	to_at TIMESTAMPTZ NOT NULL,
	approved BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS staff_leaves_actor ON staff_leaves (actor_id);

CREATE TABLE IF NOT EXISTS delegation_grants (
	id BIGSERIAL PRIMARY KEY,
	grantor_id UUID NOT NULL,
	delegate_id UUID NOT NULL,
	from_at TIMESTAMPTZ NOT NULL,
	to_at TIMESTAMPTZ NOT NULL,
	active BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS delegation_grants_grantor ON delegation_grants (grantor_id) WHERE active;
`

// PostgresLeaveStore reads approved staff leave windows.
type PostgresLeaveStore struct {
	db *sql.DB
}

func NewPostgresLeaveStore(db *sql.DB) *PostgresLeaveStore {
	return &PostgresLeaveStore{db: db}
}

func (s *PostgresLeaveStore) OnLeave(ctx context.Context, actorID domain.StaffID, t time.Time) (bool, error) {
	var onLeave bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff_leaves
			WHERE actor_id = $1 AND approved AND from_at <= $2 AND to_at >= $2
		)
	`, uuid.UUID(actorID), t).Scan(&onLeave)
	if err != nil {
		return false, fmt.Errorf("check staff leave: %w", err)
	}
	return onLeave, nil
}

func (s *PostgresLeaveStore) Record(ctx context.Context, rec LeaveRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_leaves (actor_id, from_at, to_at, approved)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(rec.ActorID), rec.From, rec.To, rec.Approved)
	if err != nil {
		return fmt.Errorf("record staff leave: %w", err)
	}
	return nil
}

// PostgresDelegationStore keeps grants with the single-active invariant
// enforced in one transaction.
type PostgresDelegationStore struct {
	db *sql.DB
}

func NewPostgresDelegationStore(db *sql.DB) *PostgresDelegationStore {
	return &PostgresDelegationStore{db: db}
}

func (s *PostgresDelegationStore) Activate(ctx context.Context, grant DelegationGrant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delegation activate: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE delegation_grants SET active = FALSE WHERE grantor_id = $1 AND active`,
		uuid.UUID(grant.GrantorID),
	)
	if err != nil {
		return fmt.Errorf("deactivate prior grants: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO delegation_grants (grantor_id, delegate_id, from_at, to_at, active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, uuid.UUID(grant.GrantorID), uuid.UUID(grant.DelegateID), grant.From, grant.To)
	if err != nil {
		return fmt.Errorf("insert delegation grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delegation activate: %w", err)
	}
	return nil
}

func (s *PostgresDelegationStore) ActiveGrant(ctx context.Context, grantorID domain.StaffID, t time.Time) (DelegationGrant, error) {
	return s.findGrant(ctx, `grantor_id = $1`, uuid.UUID(grantorID), t)
}

func (s *PostgresDelegationStore) ActiveGrantFor(ctx context.Context, delegateID domain.StaffID, t time.Time) (DelegationGrant, error) {
	return s.findGrant(ctx, `delegate_id = $1`, uuid.UUID(delegateID), t)
}

func (s *PostgresDelegationStore) findGrant(ctx context.Context, predicate string, id uuid.UUID, t time.Time) (DelegationGrant, error) {
	query := fmt.Sprintf(`
		SELECT grantor_id, delegate_id, from_at, to_at, active
		FROM delegation_grants
		WHERE %s AND active AND from_at <= $2 AND to_at >= $2
	`, predicate)

	var (
		g                   DelegationGrant
		grantorID, delegate uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, id, t).Scan(&grantorID, &delegate, &g.From, &g.To, &g.Active)
	if err == sql.ErrNoRows {
		return DelegationGrant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return DelegationGrant{}, fmt.Errorf("find delegation grant: %w", err)
	}
	g.GrantorID = domain.StaffID(grantorID)
	g.DelegateID = domain.StaffID(delegate)
	return g, nil
}
