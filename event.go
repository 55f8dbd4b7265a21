package govent

// Reason is the cause for which a callback is being invoked.
type Reason uint16

const (
	// ReasonNone means no callback is currently in flight for this
	// event; it also doubles as the reentrancy guard: any other
	// value means a call stack is already active for this event
	// during the current wake-up.
	ReasonNone Reason = iota
	// ReasonEventOccurred means the fd became ready.
	ReasonEventOccurred
	// ReasonTimeout means the event's timeout expired.
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonEventOccurred:
		return "event occurred"
	case ReasonTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Flags are public/private bits carried by an Event.
type Flags uint16

const (
	// TmoAbs marks Timeout as an absolute clock value rather than a
	// duration relative to "now" at registration/modification time.
	TmoAbs Flags = 1 << iota
	// pendingRemove and pendingCleanup are private: set by the
	// callback-invocation helper when a callback requests retirement,
	// consumed by the post-wake-up sweep.
	pendingRemove
	pendingCleanup
)

// Verdict is the return value of an event callback.
type Verdict int

const (
	// Continue means keep the event registered.
	Continue Verdict = iota
	// Remove means retire the event after this wake-up.
	Remove
	// Cleanup means retire the event and invoke its Cleanup callback.
	Cleanup
)

// CallbackFunc is the prototype for an event callback. Check
// Event.Reason inside the callback to learn why it fired.
//
// NOTE: race conditions between timeout and readiness can't be fully
// avoided. Even when called with ReasonTimeout, the callback should
// treat the fd as possibly ready, and handle it as if readiness had
// arrived first.
//
// Do not call Remove on evt from inside this callback; return Remove
// or Cleanup instead.
type CallbackFunc func(evt *Event, events IOEvents) Verdict

// CleanupFunc is called for an event that callback requested Cleanup
// for, and for every registered event during dispatcher teardown.
// After a Cleanup verdict the event has already been unlinked from the
// dispatcher when this runs; during teardown (Dispatcher.Cleanup,
// Dispatcher.Free) it runs while the event is still in the
// dispatcher's table with its back-reference set.
type CleanupFunc func(evt *Event)

// Event is the central entity of the package: a file descriptor (or
// none, for a pure timer), an optional timeout, a callback and an
// optional cleanup, joined by a back-reference to the dispatcher that
// owns its registration.
//
// The caller owns an Event's storage and must keep it alive from Add
// until either its Cleanup callback runs or it has been removed.
// Struct embedding takes the place of the original's "struct event at
// offset 0" convention; see TimerEvent below.
type Event struct {
	fd       int
	interest IOEvents
	Reason   Reason
	flags    Flags
	dsp      *Dispatcher
	timeout  Timespec
	Callback CallbackFunc
	Cleanup  CleanupFunc
}

// noFD is the sentinel meaning "no file descriptor; pure timer".
const noFD = -1

// NewOnStack builds an event with no timeout, whose default cleanup
// closes fd. Intended for a stack/struct-embedded Event the caller
// itself owns and frees.
func NewOnStack(cb CallbackFunc, fd int, interest IOEvents) *Event {
	return NewWithTimeoutOnStack(cb, fd, interest, zeroTimespec)
}

// NewWithTimeoutOnStack is NewOnStack plus an initial relative
// timeout. The zero Timespec means "no timeout".
func NewWithTimeoutOnStack(cb CallbackFunc, fd int, interest IOEvents, timeout Timespec) *Event {
	return &Event{
		fd:       fd,
		interest: interest,
		Callback: cb,
		Cleanup:  cleanupClose,
		timeout:  timeout,
	}
}

// NewOnHeap is NewOnStack, but its default cleanup also clears the
// event's Callback and Cleanup fields, so the Event can be
// garbage-collected once the caller drops its own reference (the Go
// analogue of the C heap variant's free()).
func NewOnHeap(cb CallbackFunc, fd int, interest IOEvents) *Event {
	return NewWithTimeoutOnHeap(cb, fd, interest, zeroTimespec)
}

// NewWithTimeoutOnHeap is NewOnHeap plus an initial relative timeout.
func NewWithTimeoutOnHeap(cb CallbackFunc, fd int, interest IOEvents, timeout Timespec) *Event {
	return &Event{
		fd:       fd,
		interest: interest,
		Callback: cb,
		Cleanup:  cleanupCloseAndDrop,
		timeout:  timeout,
	}
}

// FD returns the event's file descriptor, or -1 for a pure timer.
func (e *Event) FD() int { return e.fd }

// Interest returns the readiness bits this event is registered for.
func (e *Event) Interest() IOEvents { return e.interest }

// SetInterest changes the readiness bits that will be requested the
// next time the event is (re-)submitted via Dispatcher.Modify. It does
// not by itself resubmit to the multiplexer.
func (e *Event) SetInterest(interest IOEvents) { e.interest = interest }

// Timeout returns the event's current timeout value (zero means none).
func (e *Event) Timeout() Timespec { return e.timeout }

// Flags returns the event's public+private flag bits.
func (e *Event) Flags() Flags { return e.flags }

// SetAbsolute marks (or clears) the TmoAbs flag: whether the next
// timeout value passed to ModTimeout is an absolute clock time rather
// than a duration from now. Sticky across calls, matching event.h's
// documented behavior.
func (e *Event) SetAbsolute(abs bool) {
	if abs {
		e.flags |= TmoAbs
	} else {
		e.flags &^= TmoAbs
	}
}

func (e *Event) pending() bool {
	return e.flags&(pendingRemove|pendingCleanup) != 0
}

// cleanupClose is the default cleanup for stack-allocated events: it
// just closes the fd, matching cleanup_event_on_stack.
func cleanupClose(evt *Event) {
	if evt.fd != noFD {
		closeFD(evt.fd)
	}
}

// cleanupCloseAndDrop is the default cleanup for heap-allocated
// events. Go has no free(); clearing the callback fields lets the GC
// reclaim the Event once the caller drops its own reference, which is
// the Go-idiomatic equivalent of cleanup_event_on_heap's free(evt).
func cleanupCloseAndDrop(evt *Event) {
	if evt.fd != noFD {
		closeFD(evt.fd)
	}
	evt.Callback = nil
	evt.Cleanup = nil
}

// TimerFunc is the prototype for a single-shot timer callback, the Go
// analogue of timer_cb.
type TimerFunc func(arg interface{})

// TimerEvent is the single-shot timer adapter from event.h's
// struct timer_event: an embedded Event whose callback invokes Fn
// once and retires itself.
type TimerEvent struct {
	Event
	Fn  TimerFunc
	Arg interface{}
}

// nudgeZeroTimeout bumps a zero Timespec to one nanosecond: a
// TimerEvent's timeout doubles as the "armed" flag for the timeout
// engine (a zero timeout is treated as "no timeout, never fires"), so
// a caller asking for an immediate one-shot timer would otherwise get
// a timer that never fires at all.
func nudgeZeroTimeout(timeout Timespec) Timespec {
	if timeout.IsZero() {
		return Timespec{Nsec: 1}
	}
	return timeout
}

// NewTimerOnStack builds a single-shot timer that fires Fn(arg) once
// after timeout elapses, then removes itself. A timeout of zero fires
// on the next wake-up: such a timer is nudged to fire almost
// immediately rather than never.
func NewTimerOnStack(fn TimerFunc, arg interface{}, timeout Timespec) *TimerEvent {
	te := &TimerEvent{Fn: fn, Arg: arg}
	te.Event = Event{
		fd:       noFD,
		Callback: te.invoke,
		Cleanup:  cleanupClose,
		timeout:  nudgeZeroTimeout(timeout),
	}
	return te
}

// NewTimerOnHeap is NewTimerOnStack, but its cleanup also clears the
// embedded Event's Callback and Cleanup fields (see NewOnHeap).
func NewTimerOnHeap(fn TimerFunc, arg interface{}, timeout Timespec) *TimerEvent {
	te := &TimerEvent{Fn: fn, Arg: arg}
	te.Event = Event{
		fd:       noFD,
		Callback: te.invoke,
		Cleanup:  cleanupCloseAndDrop,
		timeout:  nudgeZeroTimeout(timeout),
	}
	return te
}

func (te *TimerEvent) invoke(evt *Event, events IOEvents) Verdict {
	if te.Fn != nil {
		te.Fn(te.Arg)
	}
	return Cleanup
}
