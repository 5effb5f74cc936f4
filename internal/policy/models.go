package policy

import (
	"time"

	"gatepass/pkg/domain"
)

// HolidayBehavior says what a policy does when the departure date is a holiday.
type HolidayBehavior string

const (
	HolidayBlock        HolidayBehavior = "block"
	HolidayCustomWindow HolidayBehavior = "custom_window"
	HolidayUnrestricted HolidayBehavior = "unrestricted"
)

// Window is an inclusive hour-of-day range. Departures are checked against
// the hour component only, matching how the campus publishes its timings.
type Window struct {
	FromHour int
	ToHour   int
}

// Contains reports whether t's hour falls inside the window.
func (w Window) Contains(t time.Time) bool {
	h := t.Hour()
	return h >= w.FromHour && h <= w.ToHour
}

// Policy is a configuration row keyed by (student category, pass category).
type Policy struct {
	StudentCategory  domain.StudentCategory
	PassCategory     domain.PassCategory
	WorkingHours     *Window // nil means unrestricted on working days
	HolidayBehavior  HolidayBehavior
	HolidayWindow    *Window // consulted only for HolidayCustomWindow
	MaxDurationHours float64 // 0 means no cap
	GateAction       domain.GateAction
}

// Decision is the engine's verdict for a proposed departure.
type Decision struct {
	Allowed    bool
	Reason     string
	GateAction domain.GateAction
}

// CalendarException flags a specific date as a holiday.
type CalendarException struct {
	Date  time.Time // midnight, date component only
	Label string
}
