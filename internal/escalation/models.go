package escalation

import (
	"time"

	"gatepass/pkg/domain"
)

// Stage identifies a position in the approval chain.
type Stage int

const (
	StageMentor Stage = iota + 1
	StageHOD
	StageWarden
)

// LeaveRecord marks an approver as unavailable for a window. Only approved
// records count; a pending leave application does not re-route authority.
type LeaveRecord struct {
	ActorID  domain.StaffID
	From     time.Time
	To       time.Time
	Approved bool
}

// Covers reports whether the record makes the actor unavailable at t.
func (r LeaveRecord) Covers(t time.Time) bool {
	return r.Approved && !t.Before(r.From) && !t.After(r.To)
}

// DelegationGrant lets a delegate act with the grantor's full authority,
// department-wide, while active and inside the validity window. At most one
// grant is active per grantor.
type DelegationGrant struct {
	GrantorID  domain.StaffID
	DelegateID domain.StaffID
	From       time.Time
	To         time.Time
	Active     bool
}

// InEffect reports whether the grant confers authority at t.
func (g DelegationGrant) InEffect(t time.Time) bool {
	return g.Active && !t.Before(g.From) && !t.After(g.To)
}

// Authority is the resolver's answer: who currently holds approval power for
// a stage. Queued means nobody is available and the item waits at the stage
// for manual routing.
type Authority struct {
	ActorID    domain.StaffID
	IsDelegate bool
	Queued     bool
}
