package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/metrics"
	"gatepass/internal/request"
)

// Sweeper force-expires requests nobody will act on anymore: those whose
// return time passed without an exit, and approved ones whose departure went
// stale. Both sweeps are single bulk guarded updates; per-row work after the
// update is notification only.
type Sweeper struct {
	store     request.Store
	publisher notify.Publisher
	logger    *slog.Logger
	clock     func() time.Time
	metrics   *metrics.Metrics
	cfg       config.Sweep
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(store request.Store, publisher notify.Publisher, cfg config.Sweep, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	s := &Sweeper{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		clock:     time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Task adapts the sweeper for the runner.
func (s *Sweeper) Task() Task {
	return Task{Name: "expire-sweep", Run: s.Sweep}
}

// Sweep runs both expiration passes. Errors in one pass do not stop the
// other, and a notification failure never rolls back an expiration.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock()
	var firstErr error

	lapsed, err := s.store.ExpireReturnLapsed(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "return-lapsed sweep failed", "error", err)
		firstErr = err
	} else {
		s.report(ctx, lapsed, "your request expired: the return time passed")
	}

	stale, err := s.store.ExpireNeverExited(ctx, now.Add(-s.cfg.StaleDepartureBuffer), now)
	if err != nil {
		s.logger.ErrorContext(ctx, "stale-departure sweep failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		s.report(ctx, stale, "your request expired: the pass was never used")
	}
	return firstErr
}

func (s *Sweeper) report(ctx context.Context, expired []request.PassRequest, message string) {
	if len(expired) == 0 {
		return
	}
	s.logger.InfoContext(ctx, "expired requests", "count", len(expired))
	for _, req := range expired {
		if s.metrics != nil {
			s.metrics.SweepExpired.Inc()
		}
		if s.publisher == nil {
			continue
		}
		s.publisher.Publish(ctx, notify.Event{
			Type:        notify.EventExpired,
			RequestID:   req.ID.String(),
			StudentID:   req.StudentID.String(),
			RecipientID: req.StudentID.String(),
			Message:     message,
		})
	}
}
