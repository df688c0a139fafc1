// Package status defines the tri-valued completion Status vocabulary
// (Success, Timeout, Error), plus the error Category used to tell a caller
// whether a non-success is a misuse, a retryable transport problem, or a
// logic invariant that the manager survived by itself. The asyn Manager's
// operations return a Go error (nil on success) built with a Category; they
// do not return a Status value.
package status

import (
	"errors"
	"fmt"
)

// Status is the tri-valued result of a fallible asyn operation.
type Status int

const (
	// Success indicates the operation completed normally.
	Success Status = iota
	// Timeout indicates a queued request was cancelled by its own timer.
	Timeout
	// Error indicates misuse, a transport failure, or a surfaced invariant
	// violation. The accompanying AsynUser error buffer carries the reason.
	Error
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Timeout:
		return "Timeout"
	case Error:
		return "Error"
	default:
		return "Status(?)"
	}
}

// Category classifies why an operation returned Error, so a caller can
// decide whether the failure is worth retrying or logging loudly.
type Category int

const (
	// OK is the category of a nil error.
	OK = Category(iota)
	// User is a misuse: unknown port, already queued, not connected,
	// lock-count-zero-but-unlocked, and similar caller errors. Never retried.
	User
	// Transient is a transport failure reported by a driver's Connect call.
	// Auto-connect will retry at the next worker wake, subject to backoff.
	Transient
	// Invariant is a logic invariant violation (e.g. cancel found no entry
	// though isQueued was set). Traced as an error line; never crashes.
	Invariant
	// Unknown covers errors that were never categorized by this package.
	Unknown
)

func (c Category) String() string {
	switch c {
	case OK:
		return "OK"
	case User:
		return "User"
	case Transient:
		return "Transient"
	case Invariant:
		return "Invariant"
	default:
		return "Unknown"
	}
}

type categorized struct {
	error
	category Category
}

// New wraps untypedErr (an error or a string) with c. A nil error argument
// returns nil.
func (c Category) New(untypedErr interface{}) error {
	var err error
	switch untypedErr := untypedErr.(type) {
	case nil:
		return nil
	case error:
		err = untypedErr
	case string:
		err = errors.New(untypedErr)
	default:
		err = fmt.Errorf("%v", untypedErr)
	}
	return &categorized{error: err, category: c}
}

// Newf creates a categorized error from a format string, as fmt.Errorf would.
func (c Category) Newf(format string, a ...interface{}) error {
	return &categorized{error: fmt.Errorf(format, a...), category: c}
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (ce *categorized) Unwrap() error {
	return ce.error
}

// GetCategory returns the category attached to err by this package, OK for
// a nil error, and Unknown for an error this package never categorized.
func GetCategory(err error) Category {
	if err == nil {
		return OK
	}
	for {
		var ce *categorized
		if errors.As(err, &ce) {
			return ce.category
		}
		if err = errors.Unwrap(err); err == nil {
			return Unknown
		}
	}
}
