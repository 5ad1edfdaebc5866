package assignment

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError means a referenced request, assignment, operator or hub does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// PreconditionFailedError means the referenced record exists but is not in a
// usable state: unverified or inactive operator, capability mismatch, closed request.
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string { return e.Reason }

// ConflictError means the request already has an active assignment.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// InvalidTransitionError carries enough for a caller to retry correctly.
type InvalidTransitionError struct {
	Current string   `json:"current"`
	Target  string   `json:"target"`
	Allowed []string `json:"allowed"`
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("cannot move from %s to %s: no further transitions allowed", e.Current, e.Target)
	}
	return fmt.Sprintf("cannot move from %s to %s: allowed next states are %s", e.Current, e.Target, strings.Join(e.Allowed, ", "))
}

// UnauthorizedError means the principal is not bound to the assignment or hub.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return e.Reason }

// ValidationError rejects malformed input before any lookup happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func preconditionf(format string, args ...any) error {
	return &PreconditionFailedError{Reason: fmt.Sprintf(format, args...)}
}

func unauthorizedf(format string, args ...any) error {
	return &UnauthorizedError{Reason: fmt.Sprintf(format, args...)}
}

// lookupErr maps a missing row onto NotFoundError and wraps anything else.
func lookupErr(entity string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("get %s %d: %w", entity, id, err)
}

// Error kinds, shared by the HTTP and device reply surfaces.
const (
	KindNotFound           = "not_found"
	KindPreconditionFailed = "precondition_failed"
	KindConflict           = "conflict"
	KindInvalidTransition  = "invalid_transition"
	KindUnauthorized       = "unauthorized"
	KindValidation         = "validation"
	KindInternal           = "internal"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	var (
		nf *NotFoundError
		pf *PreconditionFailedError
		cf *ConflictError
		it *InvalidTransitionError
		ua *UnauthorizedError
		va *ValidationError
	)
	switch {
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &pf):
		return KindPreconditionFailed
	case errors.As(err, &cf):
		return KindConflict
	case errors.As(err, &it):
		return KindInvalidTransition
	case errors.As(err, &ua):
		return KindUnauthorized
	case errors.As(err, &va):
		return KindValidation
	}
	return KindInternal
}
