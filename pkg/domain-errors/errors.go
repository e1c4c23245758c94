// Package domainerrors carries the error taxonomy shared by every service.
//
// Stores return sentinel errors (see pkg/platform/sentinel); services translate
// them into an *Error with a Code so transports can map them without knowing
// which component failed. Every Error may name the entity it concerns, and
// lifecycle violations also report the current and attempted states.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers.
type Code string

const (
	CodeUnauthenticated        Code = "unauthenticated"
	CodeForbidden              Code = "forbidden"
	CodeInvalidState           Code = "invalid_state"
	CodeValidation             Code = "validation_failed"
	CodeDuplicate              Code = "duplicate"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeNotFound               Code = "not_found"
	CodeInternal               Code = "internal_error"
)

// Error is the domain error returned across service boundaries.
type Error struct {
	Code           Code
	Message        string
	EntityID       string
	CurrentState   string
	AttemptedState string
	Err            error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.EntityID != "" {
		msg += " (entity " + e.EntityID + ")"
	}
	if e.CurrentState != "" || e.AttemptedState != "" {
		msg += fmt.Sprintf(" [%s -> %s]", e.CurrentState, e.AttemptedState)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may re-read state and try again.
func (e *Error) Retryable() bool {
	return e.Code == CodeConcurrentModification
}

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithEntity returns a copy of e naming the entity it concerns.
func (e *Error) WithEntity(entityID string) *Error {
	cp := *e
	cp.EntityID = entityID
	return &cp
}

// InvalidState reports an operation that is not legal from the current lifecycle state.
func InvalidState(entityID, current, attempted string) *Error {
	return &Error{
		Code:           CodeInvalidState,
		Message:        "operation not allowed in current state",
		EntityID:       entityID,
		CurrentState:   current,
		AttemptedState: attempted,
	}
}

// Conflict reports a stale version on entityID.
func Conflict(entityID string, expected, actual int64) *Error {
	return &Error{
		Code:     CodeConcurrentModification,
		Message:  fmt.Sprintf("version %d is stale, current version is %d", expected, actual),
		EntityID: entityID,
	}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(kind, entityID string) *Error {
	return &Error{Code: CodeNotFound, Message: kind + " not found", EntityID: entityID}
}

// Forbidden reports a resolved identity that may not perform the operation.
func Forbidden(entityID, msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg, EntityID: entityID}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}
