package gate

import (
	"time"

	"github.com/google/uuid"

	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// Action is a physical scan at the gate desk.
type Action string

const (
	ActionExit  Action = "exit"
	ActionEntry Action = "entry"
)

// ParseAction constructs an Action from external input.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if a != ActionExit && a != ActionEntry {
		return "", dErrors.New(dErrors.CodeInvalidInput, "gate action must be exit or entry")
	}
	return a, nil
}

// Log is one recorded scan. Logs are append-only; the verifier derives the
// gate status from the newest one.
type Log struct {
	ID           uuid.UUID
	RequestID    domain.PassID
	Action       Action
	GatekeeperID domain.StaffID
	At           time.Time
}

// Status is the derived gate standing of a pass. It is computed on every
// check from the request's approval state plus the latest log, never stored.
type Status string

const (
	// StatusNotRequired: the policy needs no physical scan.
	StatusNotRequired Status = "not_required"
	// StatusInternal: resident internal movement, no campus exit involved.
	StatusInternal Status = "internal"
	// StatusReady: the student may exit now.
	StatusReady Status = "ready"
	// StatusTooEarly: exit attempted before the early buffer opens; allowed
	// at gatekeeper discretion.
	StatusTooEarly Status = "too_early"
	// StatusOut: the student is outside; only entry remains.
	StatusOut Status = "out"
	// StatusOverdue: outside past the stored return time.
	StatusOverdue Status = "overdue"
	// StatusCompleted: the pass ran its full course.
	StatusCompleted Status = "completed"
	// StatusExpired: the pass is no longer usable at the gate.
	StatusExpired Status = "expired"
	// StatusNotApproved: the request has not reached final approval.
	StatusNotApproved Status = "not_approved"
)

// Verification is the gate desk's answer for one pass.
type Verification struct {
	Status         Status
	AllowedActions []Action
	Warning        string
	OverdueMinutes int
}

func (v Verification) Allows(action Action) bool {
	for _, a := range v.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}
