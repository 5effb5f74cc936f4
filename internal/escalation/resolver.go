package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatepass/internal/directory"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

// Resolver determines which actor currently holds approval authority at each
// stage of a student's chain, applying leave-based escalation and delegation.
type Resolver struct {
	leaves      LeaveStore
	delegations DelegationStore
	directory   directory.Service
	logger      *slog.Logger
	clock       func() time.Time
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewResolver(leaves LeaveStore, delegations DelegationStore, dir directory.Service, opts ...Option) (*Resolver, error) {
	if leaves == nil || delegations == nil || dir == nil {
		return nil, fmt.Errorf("leave store, delegation store, and directory are required")
	}
	r := &Resolver{
		leaves:      leaves,
		delegations: delegations,
		directory:   dir,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveAuthority returns the actor holding authority for the stage right
// now. Escalation rules:
//   - stage 1: the assigned mentor; if on leave, authority escalates to the
//     department head (resolved recursively through stage 2).
//   - stage 2: the department head; if on leave, their active delegate; if no
//     delegate, the item queues at stage 2 for manual routing — never dropped.
//   - stage 3: the warden of the student's hostel; no escalation path exists
//     past the warden.
func (r *Resolver) ResolveAuthority(ctx context.Context, stage Stage, student directory.StudentProfile) (Authority, error) {
	now := r.clock()
	switch stage {
	case StageMentor:
		onLeave, err := r.leaves.OnLeave(ctx, student.MentorID, now)
		if err != nil {
			return Authority{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check mentor leave")
		}
		if !onLeave {
			return Authority{ActorID: student.MentorID}, nil
		}
		return r.resolveDepartment(ctx, student.DepartmentID, now)

	case StageHOD:
		return r.resolveDepartment(ctx, student.DepartmentID, now)

	case StageWarden:
		if student.HostelID.IsNil() {
			return Authority{}, dErrors.New(dErrors.CodeValidation, "student has no hostel; warden stage does not apply")
		}
		warden, err := r.directory.HostelWarden(ctx, student.HostelID)
		if err != nil {
			return Authority{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve hostel warden")
		}
		return Authority{ActorID: warden}, nil
	}
	return Authority{}, dErrors.New(dErrors.CodeBadRequest, "unknown approval stage")
}

func (r *Resolver) resolveDepartment(ctx context.Context, departmentID domain.DepartmentID, now time.Time) (Authority, error) {
	head, err := r.directory.DepartmentHead(ctx, departmentID)
	if err != nil {
		return Authority{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve department head")
	}

	onLeave, err := r.leaves.OnLeave(ctx, head, now)
	if err != nil {
		return Authority{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check department head leave")
	}
	if !onLeave {
		return Authority{ActorID: head}, nil
	}

	grant, err := r.delegations.ActiveGrant(ctx, head, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		// No delegate: the item stays queued with the head pending manual
		// routing rather than being silently dropped.
		return Authority{ActorID: head, Queued: true}, nil
	}
	if err != nil {
		return Authority{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up delegation")
	}
	return Authority{ActorID: grant.DelegateID, IsDelegate: true}, nil
}

// HasAuthority reports whether actor may decide the given stage for the
// student. Beyond the resolved authority, an active delegate of the
// department head may decide any stage-2 item in the department, not only
// escalated ones.
func (r *Resolver) HasAuthority(ctx context.Context, actor domain.StaffID, stage Stage, student directory.StudentProfile) (bool, error) {
	resolved, err := r.ResolveAuthority(ctx, stage, student)
	if err != nil {
		return false, err
	}
	if !resolved.Queued && resolved.ActorID == actor {
		return true, nil
	}

	// Delegation is department-global: the delegate holds the grantor's full
	// stage-2 authority even when the resolver would have picked the grantor.
	if stage == StageHOD {
		head, err := r.directory.DepartmentHead(ctx, student.DepartmentID)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve department head")
		}
		if head == actor {
			return true, nil
		}
		grant, err := r.delegations.ActiveGrantFor(ctx, actor, r.clock())
		if err == nil && grant.GrantorID == head {
			return true, nil
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up delegation")
		}
	}
	return false, nil
}

// Delegate activates a grant, implicitly deactivating the grantor's prior one.
func (r *Resolver) Delegate(ctx context.Context, grant DelegationGrant) error {
	if grant.GrantorID == grant.DelegateID {
		return dErrors.New(dErrors.CodeValidation, "cannot delegate to oneself")
	}
	if !grant.To.After(grant.From) {
		return dErrors.New(dErrors.CodeValidation, "delegation window is empty")
	}
	if err := r.delegations.Activate(ctx, grant); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate delegation")
	}
	return nil
}
