package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatepass/internal/directory"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/policy"
	"gatepass/internal/request"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Publish(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type GateServiceSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time

	requests *request.InMemoryStore
	tokens   *request.InMemoryTokenCache
	logs     *InMemoryLogStore
	dir      *directory.InMemory
	events   *eventRecorder
	svc      *Service

	resident   directory.StudentProfile
	dayScholar directory.StudentProfile
	gatekeeper domain.StaffID
}

func TestGateServiceSuite(t *testing.T) {
	suite.Run(t, new(GateServiceSuite))
}

func (s *GateServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.dir = directory.NewInMemory()
	s.resident = directory.StudentProfile{
		ID:       domain.StudentID(uuid.New()),
		Category: domain.CategoryResident,
		HostelID: domain.HostelID(uuid.New()),
		Active:   true,
	}
	s.dayScholar = directory.StudentProfile{
		ID:       domain.StudentID(uuid.New()),
		Category: domain.CategoryDayScholar,
		Active:   true,
	}
	s.dir.PutStudent(s.resident)
	s.dir.PutStudent(s.dayScholar)
	s.gatekeeper = domain.StaffID(uuid.New())

	engine := policy.NewEngine(policy.NewInMemoryStore(), policy.NewInMemoryCalendar(),
		[]time.Weekday{time.Saturday, time.Sunday})

	s.requests = request.NewInMemoryStore()
	s.tokens = request.NewInMemoryTokenCache()
	s.logs = NewInMemoryLogStore()
	s.events = &eventRecorder{}

	cfg := config.Gate{
		DepartureBuffer: 30 * time.Minute,
		EmergencyBuffer: 24 * time.Hour,
		EarlyBuffer:     2 * time.Hour,
	}

	svc, err := NewService(s.requests, s.tokens, s.logs, s.dir, engine, s.events, cfg, WithClock(clock))
	s.Require().NoError(err)
	s.svc = svc
}

// seed inserts an approved pass for the student departing one hour from now.
func (s *GateServiceSuite) seed(student directory.StudentProfile, category domain.PassCategory, status request.Status) request.PassRequest {
	req := request.PassRequest{
		ID:          domain.NewPassID(),
		StudentID:   student.ID,
		Category:    category,
		Reason:      "test pass",
		DepartureAt: s.now.Add(time.Hour),
		ReturnAt:    s.now.Add(6 * time.Hour),
		Status:      status,
		CreatedAt:   s.now,
		UpdatedAt:   s.now,
	}
	s.Require().NoError(s.requests.Create(s.ctx, req))
	return req
}

func (s *GateServiceSuite) assertCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Truef(dErrors.HasCode(err, code), "want code %s, got %v", code, err)
}

// =============================================================================
// Derivation
// =============================================================================

func (s *GateServiceSuite) TestEvaluate() {
	s.Run("day-scholar leave needs no scan", func() {
		req := s.seed(s.dayScholar, domain.PassLeave, request.StatusApprovedFinal)
		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusNotRequired, v.Status)
		s.Empty(v.AllowedActions)
	})

	s.Run("resident permission is internal movement", func() {
		req := s.seed(s.resident, domain.PassPermission, request.StatusApprovedFinal)
		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusInternal, v.Status)
		s.Empty(v.AllowedActions)
	})

	s.Run("approved pass inside the window is ready for exit", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusReady, v.Status)
		s.Equal([]Action{ActionExit}, v.AllowedActions)
		s.Empty(v.Warning)
	})

	s.Run("unapproved pass cannot be scanned", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedStage1)
		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusNotApproved, v.Status)
	})

	s.Run("cancelled pass is expired at the gate", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusCancelled)
		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusExpired, v.Status)
	})
}

func (s *GateServiceSuite) TestDepartureBuffers() {
	s.Run("too early before the early buffer opens", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		s.now = req.DepartureAt.Add(-3 * time.Hour)

		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusTooEarly, v.Status)
		// Exit stays possible at gatekeeper discretion.
		s.Equal([]Action{ActionExit}, v.AllowedActions)
	})

	s.Run("late departure warns but still permits exit", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		s.now = req.DepartureAt.Add(time.Hour)

		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusReady, v.Status)
		s.Equal("late departure", v.Warning)
	})

	s.Run("emergency passes get the long buffer", func() {
		req := s.seed(s.resident, domain.PassEmergency, request.StatusApprovedFinal)
		s.now = req.DepartureAt.Add(10 * time.Hour)

		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusReady, v.Status)
		s.Empty(v.Warning)
	})

	s.Run("day-scholar permission hard-expires past the buffer", func() {
		req := s.seed(s.dayScholar, domain.PassPermission, request.StatusApprovedFinal)
		s.now = req.DepartureAt.Add(time.Hour)

		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusExpired, v.Status)
		s.Empty(v.AllowedActions)
	})
}

// =============================================================================
// Scan pairing
// =============================================================================

func (s *GateServiceSuite) TestLogAction() {
	s.Run("exit then entry completes the pass", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		s.now = req.DepartureAt

		got, err := s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionExit)
		s.Require().NoError(err)
		s.Equal(request.StatusActive, got.Status)

		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusOut, v.Status)
		s.Equal([]Action{ActionEntry}, v.AllowedActions)

		got, err = s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionEntry)
		s.Require().NoError(err)
		s.Equal(request.StatusCompleted, got.Status)

		logs, err := s.svc.History(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Require().Len(logs, 2)
		s.Equal(ActionExit, logs[0].Action)
		s.Equal(ActionEntry, logs[1].Action)
	})

	s.Run("duplicate exit is rejected", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		s.now = req.DepartureAt

		_, err := s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionExit)
		s.Require().NoError(err)

		_, err = s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionExit)
		s.assertCode(err, dErrors.CodeConflict)
	})

	s.Run("entry before exit is rejected", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		s.now = req.DepartureAt

		_, err := s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionEntry)
		s.assertCode(err, dErrors.CodeConflict)
	})

	s.Run("exit-only pass completes on its single scan", func() {
		req := s.seed(s.dayScholar, domain.PassPermission, request.StatusApprovedFinal)
		s.now = req.DepartureAt

		got, err := s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionExit)
		s.Require().NoError(err)
		s.Equal(request.StatusCompleted, got.Status)

		v, err := s.svc.Evaluate(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusCompleted, v.Status)
	})
}

func (s *GateServiceSuite) TestOverdue() {
	req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
	s.now = req.DepartureAt

	_, err := s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionExit)
	s.Require().NoError(err)

	s.now = req.ReturnAt.Add(45 * time.Minute)
	v, err := s.svc.Evaluate(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(StatusOverdue, v.Status)
	s.Equal(45, v.OverdueMinutes)
	// Entry must stay possible; the student has to get back in.
	s.Equal([]Action{ActionEntry}, v.AllowedActions)

	got, err := s.svc.LogAction(s.ctx, s.gatekeeper, req.ID, ActionEntry)
	s.Require().NoError(err)
	s.Equal(request.StatusCompleted, got.Status)
}

// =============================================================================
// Token lookup
// =============================================================================

func (s *GateServiceSuite) TestCheck() {
	s.Run("resolves through the cache", func() {
		req := s.seed(s.resident, domain.PassOuting, request.StatusApprovedFinal)
		s.Require().NoError(s.tokens.Set(s.ctx, "rawtoken", req.ID, time.Hour))
		s.now = req.DepartureAt

		got, v, err := s.svc.Check(s.ctx, "rawtoken")
		s.Require().NoError(err)
		s.Equal(req.ID, got.ID)
		s.Equal(StatusReady, v.Status)
	})

	s.Run("falls back to the digest on a cache miss", func() {
		raw := "fallbacktoken"
		req := s.seed(s.dayScholar, domain.PassOuting, request.StatusApprovedFinal)
		s.Require().NoError(s.requests.TransitionWithToken(s.ctx, req.ID,
			request.StatusApprovedFinal, request.StatusApprovedFinal, request.DigestToken(raw), s.now))
		s.now = req.DepartureAt

		got, _, err := s.svc.Check(s.ctx, raw)
		s.Require().NoError(err)
		s.Equal(req.ID, got.ID)
	})

	s.Run("unknown token", func() {
		_, _, err := s.svc.Check(s.ctx, "nope")
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("hard-expired pass is force-expired on check", func() {
		req := s.seed(s.dayScholar, domain.PassPermission, request.StatusApprovedFinal)
		s.Require().NoError(s.tokens.Set(s.ctx, "expiring", req.ID, 48*time.Hour))
		s.now = req.DepartureAt.Add(time.Hour)

		got, v, err := s.svc.Check(s.ctx, "expiring")
		s.Require().NoError(err)
		s.Equal(StatusExpired, v.Status)
		s.Equal(request.StatusExpired, got.Status)

		stored, err := s.requests.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(request.StatusExpired, stored.Status)
	})
}
