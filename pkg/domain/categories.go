package domain

import dErrors "gatepass/pkg/domain-errors"

// StudentCategory distinguishes residents (hostel-bound, three-stage approval)
// from day scholars (two-stage approval, no warden).
type StudentCategory string

const (
	CategoryDayScholar StudentCategory = "day_scholar"
	CategoryResident   StudentCategory = "resident"
)

var validStudentCategories = map[StudentCategory]bool{
	CategoryDayScholar: true,
	CategoryResident:   true,
}

// ParseStudentCategory constructs a StudentCategory from external input.
func ParseStudentCategory(s string) (StudentCategory, error) {
	c := StudentCategory(s)
	if !validStudentCategories[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid student category")
	}
	return c, nil
}

// IsValid checks the category against the supported enum values.
func (c StudentCategory) IsValid() bool { return validStudentCategories[c] }

// PassCategory identifies why a student is leaving campus. The category drives
// policy lookup, buffer selection, and gate action classification.
type PassCategory string

const (
	PassOuting     PassCategory = "outing"
	PassLeave      PassCategory = "leave"
	PassOnDuty     PassCategory = "on_duty"
	PassEmergency  PassCategory = "emergency"
	PassPermission PassCategory = "permission"
)

var validPassCategories = map[PassCategory]bool{
	PassOuting:     true,
	PassLeave:      true,
	PassOnDuty:     true,
	PassEmergency:  true,
	PassPermission: true,
}

// ParsePassCategory constructs a PassCategory from external input.
func ParsePassCategory(s string) (PassCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "pass category cannot be empty")
	}
	c := PassCategory(s)
	if !validPassCategories[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid pass category")
	}
	return c, nil
}

// IsValid checks the category against the supported enum values.
func (c PassCategory) IsValid() bool { return validPassCategories[c] }

// GateAction classifies the physical scanning a pass requires.
type GateAction string

const (
	// GateActionNone means the pass never touches the gate desk.
	GateActionNone GateAction = "none"
	// GateActionExitOnly records a single exit scan and completes the pass.
	GateActionExitOnly GateAction = "exit_only"
	// GateActionBoth is the standard exit-then-entry flow.
	GateActionBoth GateAction = "both"
	// GateActionInternal marks resident movement inside campus; the gate
	// acknowledges the pass but no campus exit occurs.
	GateActionInternal GateAction = "internal"
)

// Role names carried in access-token claims. Session issuance is an external
// collaborator; this service only validates and gates on the role.
type Role string

const (
	RoleStudent    Role = "student"
	RoleMentor     Role = "mentor"
	RoleHOD        Role = "hod"
	RoleWarden     Role = "warden"
	RoleGatekeeper Role = "gatekeeper"
	RoleAdmin      Role = "admin"
)
