package trust

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatepass/internal/notify"
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

type LedgerSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time

	cooldowns *InMemoryCooldown
	events    *eventRecorder
	ledger    *Ledger

	student domain.StudentID
	warden  domain.StaffID
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	s.cooldowns = NewInMemoryCooldown()
	s.events = &eventRecorder{}

	ledger, err := NewLedger(NewInMemoryStore(), s.cooldowns, s.events,
		WithClock(func() time.Time { return s.now }),
		WithCooldownRule(24*time.Hour, 3))
	s.Require().NoError(err)
	s.ledger = ledger

	s.student = domain.StudentID(uuid.New())
	s.warden = domain.StaffID(uuid.New())
}

// =============================================================================
// Scores
// =============================================================================

func (s *LedgerSuite) TestAdjust() {
	s.Run("unseen actors start at the default", func() {
		score, err := s.ledger.Score(s.ctx, s.student)
		s.Require().NoError(err)
		s.Equal(DefaultScore, score)
	})

	s.Run("delta applies and notifies", func() {
		score, err := s.ledger.Adjust(s.ctx, s.student, -10, "repeated late returns", s.warden.String())
		s.Require().NoError(err)
		s.Equal(90, score)

		events := s.events.byType(notify.EventTrustAdjusted)
		s.Require().Len(events, 1)
		s.Contains(events[0].Message, "100 to 90")
	})

	s.Run("clamped at the floor", func() {
		score, err := s.ledger.Adjust(s.ctx, s.student, -500, "disciplinary", s.warden.String())
		s.Require().NoError(err)
		s.Equal(MinScore, score)
	})

	s.Run("clamped at the ceiling", func() {
		score, err := s.ledger.Adjust(s.ctx, s.student, 500, "restored", s.warden.String())
		s.Require().NoError(err)
		s.Equal(MaxScore, score)
	})

	s.Run("reason is required", func() {
		_, err := s.ledger.Adjust(s.ctx, s.student, -5, "", s.warden.String())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *LedgerSuite) TestHistory() {
	_, err := s.ledger.Adjust(s.ctx, s.student, -10, "late return", s.warden.String())
	s.Require().NoError(err)
	s.now = s.now.Add(time.Hour)
	_, err = s.ledger.Adjust(s.ctx, s.student, -2, ReasonMonthlyVolume, SystemAdjuster)
	s.Require().NoError(err)

	history, err := s.ledger.History(s.ctx, s.student)
	s.Require().NoError(err)
	s.Require().Len(history, 2)

	s.Equal(100, history[0].OldScore)
	s.Equal(90, history[0].NewScore)
	s.Equal(s.warden.String(), history[0].AdjusterID)

	s.Equal(90, history[1].OldScore)
	s.Equal(88, history[1].NewScore)
	s.Equal(SystemAdjuster, history[1].AdjusterID)
	s.Equal(ReasonMonthlyVolume, history[1].Reason)
}

// =============================================================================
// Cooldown
// =============================================================================

func (s *LedgerSuite) TestCooldown() {
	record := func(n int) {
		for i := 0; i < n; i++ {
			s.Require().NoError(s.ledger.RecordCancellation(s.ctx, s.student))
		}
	}

	s.Run("below the limit", func() {
		record(2)
		in, err := s.ledger.InCooldown(s.ctx, s.student)
		s.Require().NoError(err)
		s.False(in)
	})

	s.Run("at the limit", func() {
		record(1)
		in, err := s.ledger.InCooldown(s.ctx, s.student)
		s.Require().NoError(err)
		s.True(in)
	})

	s.Run("old cancellations age out of the window", func() {
		s.now = s.now.Add(25 * time.Hour)
		in, err := s.ledger.InCooldown(s.ctx, s.student)
		s.Require().NoError(err)
		s.False(in)
	})

	s.Run("override resets the count", func() {
		record(3)
		in, err := s.ledger.InCooldown(s.ctx, s.student)
		s.Require().NoError(err)
		s.True(in)

		s.now = s.now.Add(time.Minute)
		s.Require().NoError(s.ledger.ResetCooldown(s.ctx, s.student, s.warden))
		in, err = s.ledger.InCooldown(s.ctx, s.student)
		s.Require().NoError(err)
		s.False(in)

		s.Len(s.events.byType(notify.EventCooldownReset), 1)
	})

	s.Run("cancellations after the override count again", func() {
		record(3)
		in, err := s.ledger.InCooldown(s.ctx, s.student)
		s.Require().NoError(err)
		s.True(in)
	})
}
