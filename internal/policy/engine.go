package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// Engine decides whether a proposed departure is inside policy and which gate
// action the pass will require. Rules are pure and centralized here; callers
// never inspect policy rows directly.
type Engine struct {
	policies Store
	calendar CalendarStore
	fallback *DefaultProvider
	restDays map[time.Weekday]bool
}

func NewEngine(policies Store, calendar CalendarStore, restDays []time.Weekday) *Engine {
	rest := make(map[time.Weekday]bool, len(restDays))
	for _, d := range restDays {
		rest[d] = true
	}
	return &Engine{
		policies: policies,
		calendar: calendar,
		fallback: NewDefaultProvider(),
		restDays: rest,
	}
}

// Evaluate applies the rule chain for a proposed departure.
// Rule order (fail-fast):
//  1. Holiday behavior: block, or custom window containment
//  2. Working-hours window on ordinary days
//  3. Maximum duration cap
func (e *Engine) Evaluate(ctx context.Context, sc domain.StudentCategory, pc domain.PassCategory, departure time.Time, durationHours float64) (Decision, error) {
	pol, err := e.lookup(ctx, sc, pc)
	if err != nil {
		return Decision{}, err
	}

	holiday, err := e.isHoliday(ctx, departure)
	if err != nil {
		return Decision{}, err
	}

	if holiday {
		switch pol.HolidayBehavior {
		case HolidayBlock:
			return Decision{Reason: "passes are not issued on holidays for this category"}, nil
		case HolidayCustomWindow:
			if pol.HolidayWindow == nil || !pol.HolidayWindow.Contains(departure) {
				return Decision{Reason: "departure is outside the holiday window"}, nil
			}
		}
	} else if pol.WorkingHours != nil && !pol.WorkingHours.Contains(departure) {
		return Decision{Reason: "departure is outside working hours"}, nil
	}

	if pol.MaxDurationHours > 0 && durationHours > pol.MaxDurationHours {
		return Decision{Reason: fmt.Sprintf("duration exceeds the %.0f hour cap", pol.MaxDurationHours)}, nil
	}

	return Decision{Allowed: true, GateAction: pol.GateAction}, nil
}

// RequiredGateAction classifies the scanning requirement for a pairing
// without re-checking time windows. The gate verifier consults this for
// already-approved passes.
func (e *Engine) RequiredGateAction(ctx context.Context, sc domain.StudentCategory, pc domain.PassCategory) (domain.GateAction, error) {
	pol, err := e.lookup(ctx, sc, pc)
	if err != nil {
		return "", err
	}
	return pol.GateAction, nil
}

func (e *Engine) lookup(ctx context.Context, sc domain.StudentCategory, pc domain.PassCategory) (Policy, error) {
	pol, err := e.policies.Find(ctx, sc, pc)
	if errors.Is(err, sentinel.ErrNotFound) {
		return e.fallback.Policy(sc, pc), nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("policy lookup: %w", err)
	}
	return pol, nil
}

// isHoliday is true when the date is flagged in the calendar or falls on a
// weekly rest day.
func (e *Engine) isHoliday(ctx context.Context, t time.Time) (bool, error) {
	if e.restDays[t.Weekday()] {
		return true, nil
	}
	return e.calendar.IsException(ctx, t)
}
