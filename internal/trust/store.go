package trust

import (
	"context"
	"time"

	"gatepass/pkg/domain"
)

// Store persists scores and the append-only adjustment ledger.
type Store interface {
	// Score returns the current score, or DefaultScore for an unseen actor.
	Score(ctx context.Context, actorID domain.StudentID) (int, error)
	// Apply writes the new score and appends the adjustment atomically.
	Apply(ctx context.Context, adj Adjustment) error
	History(ctx context.Context, actorID domain.StudentID) ([]Adjustment, error)
}

// CooldownStore tracks recent cancellations and the authority-set override
// timestamp that resets the count.
type CooldownStore interface {
	RecordCancellation(ctx context.Context, actorID domain.StudentID, at time.Time) error
	// CountSince counts cancellations at or after the given instant.
	CountSince(ctx context.Context, actorID domain.StudentID, since time.Time) (int, error)
	Override(ctx context.Context, actorID domain.StudentID) (time.Time, error)
	SetOverride(ctx context.Context, actorID domain.StudentID, at time.Time) error
}
