package request

import (
	"time"

	"gatepass/pkg/domain"
)

// Status is the pass request state. The transition table below is the single
// authority on legal moves; every mutation goes through it and the stores
// re-check the expected prior status in their update predicates.
//
// "Overdue" is deliberately absent: it is a derived view of StatusActive past
// its return time, computed by the gate verifier, never stored.
type Status string

const (
	StatusPending        Status = "pending"
	StatusApprovedStage1 Status = "approved_stage1"
	StatusApprovedStage2 Status = "approved_stage2"
	StatusApprovedFinal  Status = "approved_final"
	StatusActive         Status = "active"
	StatusCompleted      Status = "completed"
	StatusRejected       Status = "rejected"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
)

// Terminal reports whether the status ends the lifecycle. Terminal requests
// never move again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// forward lists the progress edges. Side branches (rejected, cancelled,
// expired) are reachable from every non-terminal state and handled in
// CanTransition directly.
var forward = map[Status][]Status{
	StatusPending:        {StatusApprovedStage1},
	StatusApprovedStage1: {StatusApprovedStage2, StatusApprovedFinal},
	StatusApprovedStage2: {StatusApprovedFinal},
	StatusApprovedFinal:  {StatusActive, StatusCompleted},
	StatusActive:         {StatusCompleted},
}

// CanTransition reports whether from → to is a legal move.
func (s Status) CanTransition(to Status) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	for _, next := range forward[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStatuses enumerates the enum for exhaustive checks.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusApprovedStage1, StatusApprovedStage2,
		StatusApprovedFinal, StatusActive, StatusCompleted,
		StatusRejected, StatusCancelled, StatusExpired,
	}
}

// PassRequest is one leave/outing attempt. Rows are never deleted, only
// transitioned to a terminal status.
type PassRequest struct {
	ID          domain.PassID
	StudentID   domain.StudentID
	Category    domain.PassCategory
	Reason      string
	DepartureAt time.Time
	ReturnAt    time.Time
	Status      Status
	// ForwardedTo overrides the resolved approver for the next stage when an
	// authority explicitly hands the item to a colleague.
	ForwardedTo *domain.StaffID
	// TokenDigest is the sha256 hex of the verification token issued at final
	// approval. The raw token is returned once and cached for gate lookup.
	TokenDigest string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Open reports whether the request still occupies the student's single
// outstanding slot.
func (r PassRequest) Open() bool { return !r.Status.Terminal() }

// DurationHours is the requested absence length used for policy caps.
func (r PassRequest) DurationHours() float64 {
	return r.ReturnAt.Sub(r.DepartureAt).Hours()
}
