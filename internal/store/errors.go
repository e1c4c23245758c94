package store

import (
	"errors"

	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/sentinel"
)

// Translate maps a store failure on the named entity into the domain taxonomy.
// Errors that already carry a domain code pass through unchanged.
func Translate(err error, kind, entityID string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NotFound(kind, entityID)
	case errors.Is(err, sentinel.ErrVersionConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, kind+" was modified concurrently").WithEntity(entityID)
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeDuplicate, kind+" already exists").WithEntity(entityID)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeInternal, "store unavailable").WithEntity(entityID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+kind).WithEntity(entityID)
}
