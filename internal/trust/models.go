package trust

import (
	"time"

	"gatepass/pkg/domain"
)

// Score bounds. Every student starts at the ceiling and earns deductions.
const (
	MinScore     = 0
	MaxScore     = 100
	DefaultScore = 100
)

// SystemAdjuster marks adjustments applied by systemic triggers rather than a
// named authority.
const SystemAdjuster = "system"

// Well-known adjustment reasons. Free-text reasons are allowed for manual
// adjustments; these constants cover the systemic triggers.
const (
	ReasonMonthlyVolume    = "monthly_request_volume"
	ReasonLateCancellation = "late_cancellation"
)

// Adjustment is an append-only audit row. Never mutated or deleted.
type Adjustment struct {
	ActorID    domain.StudentID
	AdjusterID string // staff id or SystemAdjuster
	OldScore   int
	NewScore   int
	Delta      int
	Reason     string
	CreatedAt  time.Time
}
