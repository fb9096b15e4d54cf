package apperr

import "errors"

// Error kinds. Transport layers map these to status codes; services only ever
// return errors that carry at least one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("storage temporarily unavailable")
)

// Error is a message tagged with one or more kinds.
type Error struct {
	Msg   string
	kinds []error
	cause error
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes every kind plus the underlying cause, so errors.Is matches each.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, len(e.kinds)+1)
	out = append(out, e.kinds...)
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

func newError(msg string, cause error, kinds ...error) *Error {
	return &Error{Msg: msg, kinds: kinds, cause: cause}
}

func Validation(msg string) error { return newError(msg, nil, ErrValidation) }

func Permission(msg string) error { return newError(msg, nil, ErrPermission) }

func NotFound(msg string) error { return newError(msg, nil, ErrNotFound) }

// State reports a request that exists but is not in the state the transition needs.
// It also matches ErrNotFound: from the caller's side there is no such pending request.
func State(msg string) error { return newError(msg, nil, ErrState, ErrNotFound) }

func Conflict(msg string) error { return newError(msg, nil, ErrConflict) }

// Duplicate reports an external reference that already exists for the tenant.
func Duplicate(msg string) error { return newError(msg, nil, ErrValidation, ErrConflict) }

func Transient(msg string, cause error) error { return newError(msg, cause, ErrTransient) }

// Is reports whether err carries the given kind.
func Is(err, kind error) bool { return errors.Is(err, kind) }
