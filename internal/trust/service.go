package trust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gatepass/internal/notify"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// Ledger owns the bounded reputation score and the cancellation cooldown
// rule. Scores are clamped to [MinScore, MaxScore]; every change appends an
// Adjustment row and notifies the student.
type Ledger struct {
	store     Store
	cooldowns CooldownStore
	publisher notify.Publisher
	logger    *slog.Logger
	clock     func() time.Time

	cooldownWindow time.Duration
	cooldownLimit  int
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func WithCooldownRule(window time.Duration, limit int) Option {
	return func(l *Ledger) {
		l.cooldownWindow = window
		l.cooldownLimit = limit
	}
}

func NewLedger(store Store, cooldowns CooldownStore, publisher notify.Publisher, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("trust store is required")
	}
	if cooldowns == nil {
		return nil, fmt.Errorf("cooldown store is required")
	}
	l := &Ledger{
		store:          store,
		cooldowns:      cooldowns,
		publisher:      publisher,
		logger:         slog.Default(),
		clock:          time.Now,
		cooldownWindow: 24 * time.Hour,
		cooldownLimit:  3,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Score returns the actor's current score.
func (l *Ledger) Score(ctx context.Context, actorID domain.StudentID) (int, error) {
	score, err := l.store.Score(ctx, actorID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read trust score")
	}
	return score, nil
}

// Adjust applies a delta, clamped to the score bounds, and appends an audit
// row. adjusterID is a staff id for manual adjustments or SystemAdjuster for
// systemic triggers.
func (l *Ledger) Adjust(ctx context.Context, actorID domain.StudentID, delta int, reason, adjusterID string) (int, error) {
	if reason == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "adjustment reason is required")
	}

	old, err := l.store.Score(ctx, actorID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read trust score")
	}

	newScore := clamp(old + delta)
	adj := Adjustment{
		ActorID:    actorID,
		AdjusterID: adjusterID,
		OldScore:   old,
		NewScore:   newScore,
		Delta:      delta,
		Reason:     reason,
		CreatedAt:  l.clock(),
	}
	if err := l.store.Apply(ctx, adj); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply trust adjustment")
	}

	if l.publisher != nil {
		l.publisher.Publish(ctx, notify.Event{
			Type:        notify.EventTrustAdjusted,
			StudentID:   actorID.String(),
			RecipientID: actorID.String(),
			Message:     fmt.Sprintf("trust score changed from %d to %d (%s)", old, newScore, reason),
		})
	}
	return newScore, nil
}

// History returns the append-only adjustment ledger for an actor.
func (l *Ledger) History(ctx context.Context, actorID domain.StudentID) ([]Adjustment, error) {
	history, err := l.store.History(ctx, actorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read trust history")
	}
	return history, nil
}

// RecordCancellation feeds the cooldown counter. Called by the lifecycle on
// every cancellation, penalized or not.
func (l *Ledger) RecordCancellation(ctx context.Context, actorID domain.StudentID) error {
	if err := l.cooldowns.RecordCancellation(ctx, actorID, l.clock()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record cancellation")
	}
	return nil
}

// InCooldown reports whether the actor has hit the cancellation limit inside
// the rolling window. A manually set override timestamp shortens the window:
// only cancellations after the override count.
func (l *Ledger) InCooldown(ctx context.Context, actorID domain.StudentID) (bool, error) {
	now := l.clock()
	since := now.Add(-l.cooldownWindow)

	override, err := l.cooldowns.Override(ctx, actorID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cooldown override")
	}
	if override.After(since) {
		since = override
	}

	count, err := l.cooldowns.CountSince(ctx, actorID, since)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count cancellations")
	}
	return count >= l.cooldownLimit, nil
}

// ResetCooldown sets the override timestamp to now, wiping the counted
// cancellation history. Authority action only.
func (l *Ledger) ResetCooldown(ctx context.Context, actorID domain.StudentID, authority domain.StaffID) error {
	if err := l.cooldowns.SetOverride(ctx, actorID, l.clock()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset cooldown")
	}
	if l.publisher != nil {
		l.publisher.Publish(ctx, notify.Event{
			Type:        notify.EventCooldownReset,
			StudentID:   actorID.String(),
			RecipientID: actorID.String(),
			Message:     "cancellation cooldown reset by " + authority.String(),
		})
	}
	return nil
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
