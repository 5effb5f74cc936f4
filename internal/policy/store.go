package policy

import (
	"context"
	"time"

	"gatepass/pkg/domain"
)

// Store serves policy rows. Absence of a row is reported via
// sentinel.ErrNotFound and handled by the engine's fallback provider.
type Store interface {
	Find(ctx context.Context, sc domain.StudentCategory, pc domain.PassCategory) (Policy, error)
	Upsert(ctx context.Context, p Policy) error
}

// CalendarStore answers "is this date flagged as a holiday".
type CalendarStore interface {
	IsException(ctx context.Context, date time.Time) (bool, error)
	AddException(ctx context.Context, ex CalendarException) error
}
