package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist in store
// - ErrConflict: a guarded update matched zero rows (someone else moved first)
// - ErrDuplicate: uniqueness invariant refused the write
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDuplicate    = errors.New("duplicate")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
