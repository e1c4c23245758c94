package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrVersionConflict: compare-and-swap lost against a newer version
//   - ErrAlreadyExists: a uniqueness constraint rejected the write
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnavailable     = errors.New("unavailable")
)
