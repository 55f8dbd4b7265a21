package govent

import (
	"errors"
	"syscall"
)

// Sentinel errors returned by govent's public API. They mirror the
// negated-errno vocabulary of the C original: callers that need the
// exact OS error can use errors.As with *DispatchError.
var (
	// ErrInvalid is returned for null/missing-argument misuse: an
	// unset callback, a nil event, a nil dispatcher.
	ErrInvalid = errors.New("govent: invalid argument")

	// ErrAlreadyPresent is returned when adding an event that is
	// already registered with the dispatcher.
	ErrAlreadyPresent = errors.New("govent: event already registered")

	// ErrNotPresent is returned when modifying an event that isn't
	// currently registered. The original C implementation returns
	// EEXIST here (a known wart, see DESIGN.md); this port keeps the
	// two conditions distinguishable instead.
	ErrNotPresent = errors.New("govent: event not registered")

	// ErrBusy is returned when registering a new event while the
	// dispatcher is tearing down.
	ErrBusy = errors.New("govent: dispatcher is tearing down")

	// ErrOverflow is returned when a table or list would have to grow
	// past its domain-defined capacity limit.
	ErrOverflow = errors.New("govent: capacity exceeded")

	// ErrNoMemory mirrors the C API's ENOMEM. Go's allocator doesn't
	// fail the way realloc() can, so no call site in this package
	// actually returns it; kept for API parity (see DESIGN.md, Open
	// Question 3).
	ErrNoMemory = errors.New("govent: out of memory")
)

// DispatchError wraps an OS-level errno returned by a syscall made on
// the dispatcher's behalf (epoll_ctl, epoll_pwait, timerfd_settime, …).
type DispatchError struct {
	Op  string
	Err syscall.Errno
}

func (e *DispatchError) Error() string {
	return "govent: " + e.Op + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Interrupted reports whether the wrapped error is EINTR, the one
// error a Wait caller is explicitly expected to treat as routine
// rather than fatal (e.g. a signal delivered during epoll_pwait).
func (e *DispatchError) Interrupted() bool {
	return e.Err == syscall.EINTR
}

// Temporary reports whether retrying the same call without other
// corrective action might succeed.
func (e *DispatchError) Temporary() bool {
	return e.Err == syscall.EINTR || e.Err == syscall.EAGAIN
}

func wrapErrno(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &DispatchError{Op: op, Err: errno}
	}
	return err
}
