package domain

import (
	"github.com/google/uuid"

	dErrors "gatepass/pkg/domain-errors"
)

// Typed IDs keep the approval chain honest: a StaffID can never be passed
// where a StudentID is expected, and vice versa. Construct via the Parse
// functions at trust boundaries; direct casting bypasses validation.
type (
	StudentID    uuid.UUID
	StaffID      uuid.UUID
	PassID       uuid.UUID
	DepartmentID uuid.UUID
	HostelID     uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil uuid")
	}
	return u, nil
}

// ParseStudentID constructs a StudentID from external input.
func ParseStudentID(s string) (StudentID, error) {
	u, err := parseUUID(s)
	return StudentID(u), err
}

// ParseStaffID constructs a StaffID from external input.
func ParseStaffID(s string) (StaffID, error) {
	u, err := parseUUID(s)
	return StaffID(u), err
}

// ParsePassID constructs a PassID from external input.
func ParsePassID(s string) (PassID, error) {
	u, err := parseUUID(s)
	return PassID(u), err
}

// ParseDepartmentID constructs a DepartmentID from external input.
func ParseDepartmentID(s string) (DepartmentID, error) {
	u, err := parseUUID(s)
	return DepartmentID(u), err
}

// ParseHostelID constructs a HostelID from external input.
func ParseHostelID(s string) (HostelID, error) {
	u, err := parseUUID(s)
	return HostelID(u), err
}

func (id StudentID) String() string    { return uuid.UUID(id).String() }
func (id StaffID) String() string      { return uuid.UUID(id).String() }
func (id PassID) String() string       { return uuid.UUID(id).String() }
func (id DepartmentID) String() string { return uuid.UUID(id).String() }
func (id HostelID) String() string     { return uuid.UUID(id).String() }

func (id StudentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id StaffID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id PassID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id DepartmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id HostelID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// NewPassID mints a fresh pass identifier.
func NewPassID() PassID { return PassID(uuid.New()) }
