package escalation

import (
	"context"
	"time"

	"gatepass/pkg/domain"
)

// LeaveStore answers availability questions about approvers.
type LeaveStore interface {
	// OnLeave reports whether the actor has an approved leave covering t.
	OnLeave(ctx context.Context, actorID domain.StaffID, t time.Time) (bool, error)
	Record(ctx context.Context, rec LeaveRecord) error
}

// DelegationStore persists delegation grants. Activate enforces the
// single-active-grant invariant by deactivating the grantor's prior grant.
type DelegationStore interface {
	Activate(ctx context.Context, grant DelegationGrant) error
	// ActiveGrant returns the grantor's grant in effect at t, or
	// sentinel.ErrNotFound.
	ActiveGrant(ctx context.Context, grantorID domain.StaffID, t time.Time) (DelegationGrant, error)
	// ActiveGrantFor returns the grant naming the delegate in effect at t,
	// or sentinel.ErrNotFound.
	ActiveGrantFor(ctx context.Context, delegateID domain.StaffID, t time.Time) (DelegationGrant, error)
}
