package request

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatepass/internal/directory"
	"gatepass/internal/escalation"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/policy"
	"gatepass/internal/trust"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Publish(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) byType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time

	store       *InMemoryStore
	tokens      *InMemoryTokenCache
	restricts   *InMemoryRestrictions
	dir         *directory.InMemory
	leaves      *escalation.InMemoryLeaveStore
	delegations *escalation.InMemoryDelegationStore
	ledger      *trust.Ledger
	events      *eventRecorder
	svc         *Service

	resident   directory.StudentProfile
	dayScholar directory.StudentProfile
	mentor     domain.StaffID
	head       domain.StaffID
	warden     domain.StaffID
	department domain.DepartmentID
	hostel     domain.HostelID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	// A Wednesday mid-morning, well clear of rest days.
	s.now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.mentor = domain.StaffID(uuid.New())
	s.head = domain.StaffID(uuid.New())
	s.warden = domain.StaffID(uuid.New())
	s.department = domain.DepartmentID(uuid.New())
	s.hostel = domain.HostelID(uuid.New())

	s.dir = directory.NewInMemory()
	s.resident = directory.StudentProfile{
		ID:           domain.StudentID(uuid.New()),
		Category:     domain.CategoryResident,
		MentorID:     s.mentor,
		DepartmentID: s.department,
		HostelID:     s.hostel,
		Active:       true,
	}
	s.dayScholar = directory.StudentProfile{
		ID:           domain.StudentID(uuid.New()),
		Category:     domain.CategoryDayScholar,
		MentorID:     s.mentor,
		DepartmentID: s.department,
		Active:       true,
	}
	s.dir.PutStudent(s.resident)
	s.dir.PutStudent(s.dayScholar)
	s.dir.PutDepartmentHead(s.department, s.head)
	s.dir.PutHostelWarden(s.hostel, s.warden)

	s.events = &eventRecorder{}

	ledger, err := trust.NewLedger(trust.NewInMemoryStore(), trust.NewInMemoryCooldown(), s.events,
		trust.WithClock(clock))
	s.Require().NoError(err)
	s.ledger = ledger

	s.leaves = escalation.NewInMemoryLeaveStore()
	s.delegations = escalation.NewInMemoryDelegationStore()
	resolver, err := escalation.NewResolver(s.leaves, s.delegations, s.dir, escalation.WithClock(clock))
	s.Require().NoError(err)

	engine := policy.NewEngine(policy.NewInMemoryStore(), policy.NewInMemoryCalendar(),
		[]time.Weekday{time.Saturday, time.Sunday})

	s.store = NewInMemoryStore()
	s.tokens = NewInMemoryTokenCache()
	s.restricts = NewInMemoryRestrictions()

	cfg := config.Lifecycle{
		CreateHorizon:        7 * 24 * time.Hour,
		CreateGrace:          15 * time.Minute,
		EditLock:             2 * time.Hour,
		TrustCreateFloor:     30,
		TrustVerifyFloor:     50,
		CooldownWindow:       24 * time.Hour,
		CooldownLimit:        3,
		MonthlyVolumeLimit:   4,
		MonthlyVolumePenalty: 2,
		LateCancelPenalty:    10,
	}

	svc, err := NewService(s.store, s.restricts, s.tokens, s.dir, engine, resolver, ledger, s.events, cfg,
		WithClock(clock))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) input() CreateInput {
	return CreateInput{
		Category:    domain.PassOuting,
		Reason:      "family visit",
		DepartureAt: s.now.Add(3 * time.Hour),
		ReturnAt:    s.now.Add(8 * time.Hour),
	}
}

func (s *ServiceSuite) create(studentID domain.StudentID) PassRequest {
	req, err := s.svc.Create(s.ctx, studentID, s.input())
	s.Require().NoError(err)
	return req
}

// close moves the request to a terminal state directly so the student's
// single outstanding slot frees up without touching cooldown counters.
func (s *ServiceSuite) close(req PassRequest) {
	s.Require().NoError(s.store.Transition(s.ctx, req.ID, req.Status, StatusRejected, s.now))
}

func (s *ServiceSuite) assertCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Truef(dErrors.HasCode(err, code), "want code %s, got %v", code, err)
}

// =============================================================================
// Creation
// =============================================================================

func (s *ServiceSuite) TestCreate() {
	s.Run("inserts at pending and notifies the mentor", func() {
		req := s.create(s.resident.ID)
		s.Equal(StatusPending, req.Status)

		created := s.events.byType(notify.EventRequestCreated)
		s.Require().Len(created, 1)
		s.Equal(s.mentor.String(), created[0].RecipientID)
		s.close(req)
	})

	s.Run("refuses a second open request", func() {
		req := s.create(s.resident.ID)
		_, err := s.svc.Create(s.ctx, s.resident.ID, s.input())
		s.assertCode(err, dErrors.CodeConflict)
		s.close(req)
	})

	s.Run("auto-fills return to end of departure day", func() {
		in := s.input()
		in.ReturnAt = time.Time{}
		req, err := s.svc.Create(s.ctx, s.resident.ID, in)
		s.Require().NoError(err)
		s.Equal(23, req.ReturnAt.Hour())
		s.Equal(59, req.ReturnAt.Minute())
		s.Equal(in.DepartureAt.Day(), req.ReturnAt.Day())
		s.close(req)
	})

	s.Run("rejects a departure in the past beyond the grace", func() {
		in := s.input()
		in.DepartureAt = s.now.Add(-time.Hour)
		in.ReturnAt = s.now.Add(8 * time.Hour)
		_, err := s.svc.Create(s.ctx, s.resident.ID, in)
		s.assertCode(err, dErrors.CodeValidation)
	})

	s.Run("tolerates a departure just inside the grace", func() {
		in := s.input()
		in.DepartureAt = s.now.Add(-10 * time.Minute)
		req, err := s.svc.Create(s.ctx, s.resident.ID, in)
		s.Require().NoError(err)
		s.close(req)
	})

	s.Run("rejects a departure past the horizon", func() {
		in := s.input()
		in.DepartureAt = s.now.Add(8 * 24 * time.Hour)
		in.ReturnAt = in.DepartureAt.Add(4 * time.Hour)
		_, err := s.svc.Create(s.ctx, s.resident.ID, in)
		s.assertCode(err, dErrors.CodeValidation)
	})

	s.Run("rejects return before departure", func() {
		in := s.input()
		in.ReturnAt = in.DepartureAt.Add(-time.Hour)
		_, err := s.svc.Create(s.ctx, s.resident.ID, in)
		s.assertCode(err, dErrors.CodeValidation)
	})

	s.Run("unknown student", func() {
		_, err := s.svc.Create(s.ctx, domain.StudentID(uuid.New()), s.input())
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestCreateEligibility() {
	s.Run("pass-blocked account is a critical block", func() {
		blocked := s.resident
		blocked.ID = domain.StudentID(uuid.New())
		blocked.PassBlocked = true
		s.dir.PutStudent(blocked)

		_, err := s.svc.Create(s.ctx, blocked.ID, s.input())
		s.assertCode(err, dErrors.CodeEligibility)
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.SeverityCritical, de.Severity)
	})

	s.Run("inactive account is a critical block", func() {
		inactive := s.resident
		inactive.ID = domain.StudentID(uuid.New())
		inactive.Active = false
		s.dir.PutStudent(inactive)

		_, err := s.svc.Create(s.ctx, inactive.ID, s.input())
		s.assertCode(err, dErrors.CodeEligibility)
	})

	s.Run("trust below the floor is a critical block", func() {
		_, err := s.ledger.Adjust(s.ctx, s.resident.ID, -75, "disciplinary", trust.SystemAdjuster)
		s.Require().NoError(err)

		_, err = s.svc.Create(s.ctx, s.resident.ID, s.input())
		s.assertCode(err, dErrors.CodeEligibility)
		de, _ := dErrors.As(err)
		s.Equal(dErrors.SeverityCritical, de.Severity)
	})

	s.Run("group restriction is a critical block", func() {
		dept := s.department
		s.Require().NoError(s.restricts.Add(s.ctx, Restriction{
			DepartmentID: &dept,
			Reason:       "exam week",
			From:         s.now.Add(-time.Hour),
			To:           s.now.Add(48 * time.Hour),
		}))

		_, err := s.svc.Create(s.ctx, s.dayScholar.ID, s.input())
		s.assertCode(err, dErrors.CodeEligibility)
	})

	s.Run("three recent cancellations trip the cooldown with warning severity", func() {
		// A separate department keeps the restriction from the previous
		// subtest out of the way.
		student := s.resident
		student.ID = domain.StudentID(uuid.New())
		student.DepartmentID = domain.DepartmentID(uuid.New())
		s.dir.PutStudent(student)
		for i := 0; i < 3; i++ {
			s.Require().NoError(s.ledger.RecordCancellation(s.ctx, student.ID))
		}

		_, err := s.svc.Create(s.ctx, student.ID, s.input())
		s.assertCode(err, dErrors.CodeEligibility)
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.SeverityWarning, de.Severity)
	})
}

func (s *ServiceSuite) TestMonthlyVolumePenalty() {
	// Four creates in the month are free; the fifth costs the fixed penalty.
	for i := 0; i < 4; i++ {
		s.close(s.create(s.resident.ID))
	}
	score, err := s.ledger.Score(s.ctx, s.resident.ID)
	s.Require().NoError(err)
	s.Equal(100, score)

	s.close(s.create(s.resident.ID))
	score, err = s.ledger.Score(s.ctx, s.resident.ID)
	s.Require().NoError(err)
	s.Equal(98, score)

	history, err := s.ledger.History(s.ctx, s.resident.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(trust.ReasonMonthlyVolume, history[0].Reason)
}

// =============================================================================
// Approval chain
// =============================================================================

func (s *ServiceSuite) TestResidentApprovalChain() {
	req := s.create(s.resident.ID)

	req, err := s.svc.Recommend(s.ctx, s.mentor, req.ID)
	s.Require().NoError(err)
	s.Equal(StatusApprovedStage1, req.Status)

	result, err := s.svc.Approve(s.ctx, s.head, req.ID)
	s.Require().NoError(err)
	s.Equal(StatusApprovedStage2, result.Request.Status)
	s.Empty(result.IssuedToken)

	result, err = s.svc.Verify(s.ctx, s.warden, req.ID, false)
	s.Require().NoError(err)
	s.Equal(StatusApprovedFinal, result.Request.Status)
	s.Require().NotEmpty(result.IssuedToken)
	s.Equal(DigestToken(result.IssuedToken), result.Request.TokenDigest)

	// The raw token resolves through the cache.
	id, err := s.tokens.Get(s.ctx, result.IssuedToken)
	s.Require().NoError(err)
	s.Equal(req.ID, id)

	ready := s.events.byType(notify.EventRequestReady)
	s.Require().Len(ready, 1)
	s.Equal(s.resident.ID.String(), ready[0].RecipientID)
}

func (s *ServiceSuite) TestDayScholarShortCircuit() {
	req := s.create(s.dayScholar.ID)

	req, err := s.svc.Recommend(s.ctx, s.mentor, req.ID)
	s.Require().NoError(err)

	result, err := s.svc.Approve(s.ctx, s.head, req.ID)
	s.Require().NoError(err)
	s.Equal(StatusApprovedFinal, result.Request.Status)
	s.NotEmpty(result.IssuedToken)
}

func (s *ServiceSuite) TestDecisionAuthorization() {
	s.Run("stranger cannot recommend", func() {
		req := s.create(s.resident.ID)
		_, err := s.svc.Recommend(s.ctx, domain.StaffID(uuid.New()), req.ID)
		s.assertCode(err, dErrors.CodeForbidden)
		s.close(req)
	})

	s.Run("forwarded target gains decision authority", func() {
		colleague := domain.StaffID(uuid.New())
		req := s.create(s.resident.ID)

		req, err := s.svc.Forward(s.ctx, s.mentor, colleague, req.ID)
		s.Require().NoError(err)

		got, err := s.svc.Recommend(s.ctx, colleague, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusApprovedStage1, got.Status)
		s.close(got)
	})

	s.Run("mentor on leave loses stage-1 authority to the head", func() {
		s.Require().NoError(s.leaves.Record(s.ctx, escalation.LeaveRecord{
			ActorID:  s.mentor,
			From:     s.now.Add(-time.Hour),
			To:       s.now.Add(24 * time.Hour),
			Approved: true,
		}))
		req := s.create(s.resident.ID)

		_, err := s.svc.Recommend(s.ctx, s.mentor, req.ID)
		s.assertCode(err, dErrors.CodeForbidden)

		got, err := s.svc.Recommend(s.ctx, s.head, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusApprovedStage1, got.Status)
		s.close(got)
	})

	s.Run("active delegate approves stage-2 while the head is on leave", func() {
		delegate := domain.StaffID(uuid.New())
		s.Require().NoError(s.leaves.Record(s.ctx, escalation.LeaveRecord{
			ActorID:  s.head,
			From:     s.now.Add(-time.Hour),
			To:       s.now.Add(24 * time.Hour),
			Approved: true,
		}))
		s.Require().NoError(s.delegations.Activate(s.ctx, escalation.DelegationGrant{
			GrantorID:  s.head,
			DelegateID: delegate,
			From:       s.now.Add(-time.Hour),
			To:         s.now.Add(24 * time.Hour),
			Active:     true,
		}))

		// Both the mentor and the head are now on leave, so stage-1
		// escalates all the way to the delegate as well.
		req := s.create(s.resident.ID)
		req, err := s.svc.Recommend(s.ctx, delegate, req.ID)
		s.Require().NoError(err)

		result, err := s.svc.Approve(s.ctx, delegate, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusApprovedStage2, result.Request.Status)
		s.close(result.Request)
	})
}

func (s *ServiceSuite) TestGuardedDecisions() {
	s.Run("a decision applies exactly once", func() {
		req := s.create(s.resident.ID)
		_, err := s.svc.Recommend(s.ctx, s.mentor, req.ID)
		s.Require().NoError(err)

		_, err = s.svc.Recommend(s.ctx, s.mentor, req.ID)
		s.assertCode(err, dErrors.CodeConflict)
		s.close(PassRequest{ID: req.ID, Status: StatusApprovedStage1})
	})

	s.Run("approve out of order is a conflict", func() {
		req := s.create(s.resident.ID)
		_, err := s.svc.Approve(s.ctx, s.head, req.ID)
		s.assertCode(err, dErrors.CodeConflict)
		s.close(req)
	})
}

func (s *ServiceSuite) TestVerifyTrustFloor() {
	s.Run("resident below the verification floor is blocked", func() {
		_, err := s.ledger.Adjust(s.ctx, s.resident.ID, -60, "disciplinary", trust.SystemAdjuster)
		s.Require().NoError(err)

		req := s.create(s.resident.ID)
		req, err = s.svc.Recommend(s.ctx, s.mentor, req.ID)
		s.Require().NoError(err)
		result, err := s.svc.Approve(s.ctx, s.head, req.ID)
		s.Require().NoError(err)

		_, err = s.svc.Verify(s.ctx, s.warden, req.ID, false)
		s.assertCode(err, dErrors.CodeEligibility)

		// The warden may override the floor explicitly.
		final, err := s.svc.Verify(s.ctx, s.warden, result.Request.ID, true)
		s.Require().NoError(err)
		s.Equal(StatusApprovedFinal, final.Request.Status)
	})
}

func (s *ServiceSuite) TestReject() {
	req := s.create(s.resident.ID)
	got, err := s.svc.Reject(s.ctx, s.mentor, req.ID, "insufficient reason")
	s.Require().NoError(err)
	s.Equal(StatusRejected, got.Status)

	rejected := s.events.byType(notify.EventRejected)
	s.Require().Len(rejected, 1)
	s.Contains(rejected[0].Message, "insufficient reason")
}

// =============================================================================
// Cancellation
// =============================================================================

func (s *ServiceSuite) TestCancel() {
	s.Run("pending cancel carries no penalty but counts for cooldown", func() {
		req := s.create(s.resident.ID)
		got, err := s.svc.Cancel(s.ctx, s.resident.ID, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusCancelled, got.Status)

		score, err := s.ledger.Score(s.ctx, s.resident.ID)
		s.Require().NoError(err)
		s.Equal(100, score)
	})

	s.Run("late cancel after final approval costs the penalty", func() {
		req := s.create(s.resident.ID)
		req, err := s.svc.Recommend(s.ctx, s.mentor, req.ID)
		s.Require().NoError(err)
		_, err = s.svc.Approve(s.ctx, s.head, req.ID)
		s.Require().NoError(err)
		_, err = s.svc.Verify(s.ctx, s.warden, req.ID, false)
		s.Require().NoError(err)

		_, err = s.svc.Cancel(s.ctx, s.resident.ID, req.ID)
		s.Require().NoError(err)

		score, err := s.ledger.Score(s.ctx, s.resident.ID)
		s.Require().NoError(err)
		s.Equal(90, score)
	})

	s.Run("cancel while out is refused", func() {
		req := s.create(s.resident.ID)
		s.Require().NoError(s.store.Transition(s.ctx, req.ID, StatusPending, StatusActive, s.now))

		_, err := s.svc.Cancel(s.ctx, s.resident.ID, req.ID)
		s.assertCode(err, dErrors.CodeConflict)
		s.close(PassRequest{ID: req.ID, Status: StatusActive})
	})

	s.Run("cannot cancel another student's request", func() {
		req := s.create(s.resident.ID)
		_, err := s.svc.Cancel(s.ctx, s.dayScholar.ID, req.ID)
		s.assertCode(err, dErrors.CodeForbidden)
		s.close(req)
	})

	s.Run("three cancellations block the next create", func() {
		student := s.resident
		student.ID = domain.StudentID(uuid.New())
		s.dir.PutStudent(student)

		for i := 0; i < 3; i++ {
			req := s.create(student.ID)
			_, err := s.svc.Cancel(s.ctx, student.ID, req.ID)
			s.Require().NoError(err)
		}

		_, err := s.svc.Create(s.ctx, student.ID, s.input())
		s.assertCode(err, dErrors.CodeEligibility)

		// An authority reset clears the block. The clock moves forward so
		// the override lands after the recorded cancellations.
		s.now = s.now.Add(time.Minute)
		s.Require().NoError(s.ledger.ResetCooldown(s.ctx, student.ID, s.warden))
		req, err := s.svc.Create(s.ctx, student.ID, s.input())
		s.Require().NoError(err)
		s.close(req)
	})
}

// =============================================================================
// Editing and reads
// =============================================================================

func (s *ServiceSuite) TestEdit() {
	s.Run("edits a pending request well before departure", func() {
		req := s.create(s.resident.ID)
		upd := DetailsUpdate{
			Category:    domain.PassLeave,
			Reason:      "updated reason",
			DepartureAt: s.now.Add(5 * time.Hour),
			ReturnAt:    s.now.Add(9 * time.Hour),
		}
		got, err := s.svc.Edit(s.ctx, s.resident.ID, req.ID, upd)
		s.Require().NoError(err)
		s.Equal(domain.PassLeave, got.Category)
		s.Equal("updated reason", got.Reason)
		s.close(got)
	})

	s.Run("edits close near departure", func() {
		in := s.input()
		in.DepartureAt = s.now.Add(time.Hour)
		in.ReturnAt = s.now.Add(6 * time.Hour)
		req, err := s.svc.Create(s.ctx, s.resident.ID, in)
		s.Require().NoError(err)

		_, err = s.svc.Edit(s.ctx, s.resident.ID, req.ID, DetailsUpdate{
			Category:    domain.PassOuting,
			Reason:      "late change",
			DepartureAt: s.now.Add(4 * time.Hour),
			ReturnAt:    s.now.Add(7 * time.Hour),
		})
		s.assertCode(err, dErrors.CodeValidation)
		s.close(req)
	})

	s.Run("only pending requests can be edited", func() {
		req := s.create(s.resident.ID)
		req, err := s.svc.Recommend(s.ctx, s.mentor, req.ID)
		s.Require().NoError(err)

		_, err = s.svc.Edit(s.ctx, s.resident.ID, req.ID, DetailsUpdate{
			Category:    domain.PassOuting,
			Reason:      "change",
			DepartureAt: s.now.Add(5 * time.Hour),
			ReturnAt:    s.now.Add(8 * time.Hour),
		})
		s.assertCode(err, dErrors.CodeConflict)
		s.close(req)
	})
}

func (s *ServiceSuite) TestQueues() {
	req := s.create(s.resident.ID)

	queue, err := s.svc.Queue(s.ctx, s.mentor, escalation.StageMentor)
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(req.ID, queue[0].ID)

	// Nothing awaits the head yet.
	queue, err = s.svc.Queue(s.ctx, s.head, escalation.StageHOD)
	s.Require().NoError(err)
	s.Empty(queue)

	req, err = s.svc.Recommend(s.ctx, s.mentor, req.ID)
	s.Require().NoError(err)

	queue, err = s.svc.Queue(s.ctx, s.head, escalation.StageHOD)
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.close(req)
}
