// Package status carries the error taxonomy shared by every layer of the
// store. Callers branch on the code, never on message text.
package status

import (
	"errors"
	"fmt"
)

// Code classifies an error.
type Code uint8

const (
	// NotFound reports absence of a key. It is an expected outcome, not a
	// fault, and is never logged as an error.
	NotFound Code = iota
	// InvalidArgument reports caller misuse (comparator mismatch on open,
	// released snapshot reuse). Never retried automatically.
	InvalidArgument
	// IOError reports a storage medium fault. A failed write leaves the
	// visible state unchanged.
	IOError
	// Corruption reports on-disk data that fails integrity checks.
	Corruption
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not found"
	case InvalidArgument:
		return "invalid argument"
	case IOError:
		return "I/O error"
	case Corruption:
		return "corruption"
	default:
		return fmt.Sprintf("unknown code %d", uint8(c))
	}
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Code.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so
// errors.Is(err, status.ErrNotFound) works across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Code: NotFound}
	ErrInvalidArgument = &Error{Code: InvalidArgument}
	ErrIOError         = &Error{Code: IOError}
	ErrCorruption      = &Error{Code: Corruption}
)

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Code: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf builds an InvalidArgument error.
func InvalidArgumentf(format string, args ...interface{}) error {
	return &Error{Code: InvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// IOErrorf wraps a storage fault with context.
func IOErrorf(err error, format string, args ...interface{}) error {
	return &Error{Code: IOError, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Corruptionf builds a Corruption error, optionally wrapping a decode error.
func Corruptionf(err error, format string, args ...interface{}) error {
	return &Error{Code: Corruption, Msg: fmt.Sprintf(format, args...), Err: err}
}

func is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool { return is(err, NotFound) }

// IsInvalidArgument reports whether err carries the InvalidArgument code.
func IsInvalidArgument(err error) bool { return is(err, InvalidArgument) }

// IsIOError reports whether err carries the IOError code.
func IsIOError(err error) bool { return is(err, IOError) }

// IsCorruption reports whether err carries the Corruption code.
func IsCorruption(err error) bool { return is(err, Corruption) }
