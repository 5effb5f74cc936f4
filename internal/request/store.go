package request

import (
	"context"
	"time"

	"gatepass/pkg/domain"
)

// DetailsUpdate carries the editable fields of a pending request.
type DetailsUpdate struct {
	Category    domain.PassCategory
	Reason      string
	DepartureAt time.Time
	ReturnAt    time.Time
}

// Store persists pass requests. Every mutation is a guarded update: the
// expected prior status is part of the predicate, and zero affected rows
// surfaces as sentinel.ErrConflict — never a silent no-op.
type Store interface {
	// Create inserts at StatusPending. Returns sentinel.ErrDuplicate if the
	// student already has an open request.
	Create(ctx context.Context, req PassRequest) error
	FindByID(ctx context.Context, id domain.PassID) (PassRequest, error)
	FindOpenByStudent(ctx context.Context, studentID domain.StudentID) (PassRequest, error)
	FindByTokenDigest(ctx context.Context, digest string) (PassRequest, error)

	// Transition moves id from → to iff the row is still at from.
	Transition(ctx context.Context, id domain.PassID, from, to Status, at time.Time) error
	// TransitionWithToken additionally stores the verification token digest;
	// used for the move into StatusApprovedFinal.
	TransitionWithToken(ctx context.Context, id domain.PassID, from, to Status, tokenDigest string, at time.Time) error
	// UpdateDetails rewrites the editable fields iff the row is still at
	// expected.
	UpdateDetails(ctx context.Context, id domain.PassID, expected Status, upd DetailsUpdate, at time.Time) error
	// SetForwarded records a delegated approver override for the current stage
	// iff the row is still at expected.
	SetForwarded(ctx context.Context, id domain.PassID, expected Status, to domain.StaffID, at time.Time) error

	ListByStudent(ctx context.Context, studentID domain.StudentID) ([]PassRequest, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]PassRequest, error)
	CountCreatedBetween(ctx context.Context, studentID domain.StudentID, from, to time.Time) (int, error)

	// ExpireReturnLapsed bulk-moves never-exited requests whose return time
	// has passed to StatusExpired and returns the rows it moved.
	ExpireReturnLapsed(ctx context.Context, now time.Time) ([]PassRequest, error)
	// ExpireNeverExited bulk-moves approved requests whose departure is older
	// than cutoff and that never saw an exit scan.
	ExpireNeverExited(ctx context.Context, cutoff, now time.Time) ([]PassRequest, error)
}

// TokenCache maps raw verification tokens to request ids for the gate desk.
// Redis in production, memory in tests; misses fall back to the digest lookup
// on the store.
type TokenCache interface {
	Set(ctx context.Context, token string, id domain.PassID, ttl time.Duration) error
	Get(ctx context.Context, token string) (domain.PassID, error)
}
