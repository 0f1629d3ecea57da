package response

import (
	"errors"
)

// Error carries the HTTP status a domain error should be reported with.
// Err is the client-facing message; cause, when set, stays server-side.
type Error struct {
	Code  int
	Err   error
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Err.Error() + ": " + e.cause.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.cause}
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Err: errors.New(err)}
}

// Wrap attaches cause to the sentinel base. The result still matches base
// with errors.Is and reaches cause through errors.Is / errors.As.
func Wrap(base error, cause error) error {
	var b *Error
	if !errors.As(base, &b) {
		return errors.Join(base, cause)
	}
	return &Error{Code: b.Code, Err: b.Err, cause: cause}
}
