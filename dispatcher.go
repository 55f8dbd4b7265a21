package govent

import "golang.org/x/sys/unix"

// ErrLoopQuit is returned by a loop error handler, or by Run itself,
// to stop event_loop's repeat. Distinct from the negative-errno
// values an error handler may also return to the same effect.
var ErrLoopQuit = &quitError{}

type quitError struct{}

func (*quitError) Error() string { return "govent: loop quit requested" }

// ErrHandler is consulted by Run when Wait returns an error. Return
// nil to keep looping, ErrLoopQuit (or any other error) to stop and
// have Run return that value.
type ErrHandler func(err error) error

// Dispatcher ties the registration table (C3), the timeout engine
// (C2) and the readiness poller together into the single-threaded
// cooperative loop. Ported from event.c's
// struct dispatcher / new_dispatcher / event_wait / event_loop.
type Dispatcher struct {
	poller  *poller
	table   table
	timeout *timeoutEngine
	exiting bool
}

// NewDispatcher creates a readiness multiplexer and a timeout engine
// using clockSource (one of unix.CLOCK_MONOTONIC, CLOCK_REALTIME, …),
// and installs the timeout engine's own event directly — bypassing
// the registration table, exactly as _event_add(dsp, dsp->timeout_event)
// does in the original; the timeout event lives only in d.timeout.
func NewDispatcher(clockSource int32) (*Dispatcher, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	te, err := newTimeoutEngine(clockSource)
	if err != nil {
		p.close()
		return nil, err
	}

	d := &Dispatcher{poller: p, timeout: te}
	if err := d.installTimeoutEvent(); err != nil {
		te.close()
		p.close()
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) installTimeoutEvent() error {
	evt := d.timeout.ev
	if err := d.poller.add(evt.fd, evt.interest, evt); err != nil {
		return err
	}
	evt.dsp = d
	evt.Reason = ReasonNone
	return nil
}

// EFD returns the epoll file descriptor, for callers implementing
// their own custom wait loop (dispatcher_get_efd).
func (d *Dispatcher) EFD() int { return d.poller.epfd }

// ClockSource returns the clock passed to NewDispatcher
// (dispatcher_get_clocksource).
func (d *Dispatcher) ClockSource() int32 { return d.timeout.clockSource() }

// installEvent is the install path behind Add (the timeout event uses
// installTimeoutEvent instead): register with the poller (skipped when
// fd is "none"), seed Reason, set the back-reference, insert into the
// timeout engine. Rolls back the table entry if the poller install
// fails, matching _event_add's error path.
func (d *Dispatcher) installEvent(evt *Event) error {
	if evt.fd != noFD {
		if err := d.poller.add(evt.fd, evt.interest, evt); err != nil {
			d.table.remove(evt, true)
			return err
		}
	}
	evt.dsp = d
	evt.Reason = ReasonNone
	return d.timeout.add(evt)
}

// Add registers evt with the dispatcher: installs it into the
// multiplexer (unless its fd is "none"), and into the timeout engine
// if it carries a timeout.
func (d *Dispatcher) Add(evt *Event) error {
	if evt == nil || evt.Callback == nil {
		return ErrInvalid
	}
	if d.exiting {
		return ErrBusy
	}
	if err := d.table.add(evt); err != nil {
		return err
	}
	return d.installEvent(evt)
}

// Remove unregisters evt: removes it from the multiplexer (if it has
// an fd), cancels its timeout, removes it from the registration table
// (with gc), and clears its back-reference.
//
// Do not call this from inside a callback — return Remove or Cleanup
// instead.
func (d *Dispatcher) Remove(evt *Event) error {
	if evt == nil || evt.dsp == nil {
		return ErrInvalid
	}
	if d.exiting {
		return nil
	}

	d.timeout.cancel(evt)
	var err error
	if evt.fd != noFD {
		err = d.poller.delete(evt.fd)
	}
	d.table.remove(evt, true)
	evt.dsp = nil
	return err
}

// Modify re-submits evt's readiness mask to the multiplexer. Fails
// ErrNotPresent if evt isn't currently registered.
func (d *Dispatcher) Modify(evt *Event) error {
	if evt == nil {
		return ErrInvalid
	}
	if d.exiting {
		return ErrBusy
	}
	if evt.dsp == nil || d.table.find(evt) < 0 {
		WARN("attempt to modify non-existing event\n")
		return ErrNotPresent
	}
	return d.poller.modify(evt.fd, evt.interest)
}

// ModTimeout changes or re-arms evt's timeout. Safe — indeed
// mandatory — to call from within evt's own callback to re-arm after
// a ReasonTimeout firing; otherwise the timeout implicitly becomes
// infinite once consumed.
func (d *Dispatcher) ModTimeout(evt *Event, tmo Timespec) error {
	if evt == nil {
		return ErrInvalid
	}
	if d.exiting {
		return ErrBusy
	}
	if evt.dsp == nil || d.table.find(evt) < 0 {
		WARN("attempt to modify non-existing event\n")
		return ErrNotPresent
	}
	return d.timeout.modify(evt, tmo)
}

// Wait performs a single wake-up: one blocking poller wait (with
// sigmask applied atomically for its duration), readiness dispatch,
// timeout fan-out, and the deferred-removal sweep. This is event_wait.
func (d *Dispatcher) Wait(sigmask *unix.Sigset_t) (int, error) {
	if d.exiting {
		return 0, ErrBusy
	}

	events, bits, err := d.poller.wait(sigmask)
	if err != nil {
		if de, ok := err.(*DispatchError); ok && de.Interrupted() {
			DBG("epoll_pwait: %s\n", err)
		} else {
			WARN("epoll_pwait: %s\n", err)
		}
		return 0, err
	}

	DBG("received %d events\n", len(events))

	var tmoEvt *Event
	var tmoBits IOEvents
	for i, evt := range events {
		if evt == d.timeout.ev {
			tmoEvt, tmoBits = evt, bits[i]
			continue
		}
		invoke(evt, ReasonEventOccurred, bits[i], false)
	}

	if tmoEvt != nil {
		invoke(tmoEvt, ReasonEventOccurred, tmoBits, false)
	}

	for _, evt := range events {
		evt.Reason = ReasonNone
	}

	if err := d.sweep(); err != nil {
		WARN("sweep failed: %s\n", err)
	}

	return len(events), nil
}

// sweep removes every event whose flags carry pendingRemove or
// pendingCleanup, running Cleanup callbacks where requested, then
// performs one compaction pass if anything was removed.
func (d *Dispatcher) sweep() error {
	var toRemove []*Event
	d.table.forEach(func(evt *Event) {
		if evt.flags&(pendingRemove|pendingCleanup) != 0 {
			toRemove = append(toRemove, evt)
		}
	})

	for _, evt := range toRemove {
		cleanup := evt.flags&pendingCleanup != 0
		evt.flags &^= pendingRemove | pendingCleanup

		d.timeout.cancel(evt)
		if evt.fd != noFD {
			d.poller.delete(evt.fd)
		}
		d.table.remove(evt, false)
		evt.dsp = nil

		if cleanup && evt.Cleanup != nil {
			evt.Cleanup(evt)
		}
	}

	if len(toRemove) > 0 {
		return d.table.gc()
	}
	return nil
}

// Run repeats Wait. On a negative/error return, if handler is
// non-nil, it is consulted: nil return means keep looping; any
// non-nil error (ErrLoopQuit or otherwise) stops the loop and is
// returned. Without a handler, the first error from Wait is returned
// directly — this is event_loop.
func (d *Dispatcher) Run(sigmask *unix.Sigset_t, handler ErrHandler) error {
	for {
		_, err := d.Wait(sigmask)
		if err != nil {
			if handler == nil {
				return err
			}
			if herr := handler(err); herr != nil {
				return herr
			}
			continue
		}
	}
}

// Cleanup removes every live entry, invokes its Cleanup callback, and
// resets the timeout engine. Idempotent — a second call is a no-op.
// Touches kernel state (removes every fd from epoll); safe on a
// still-live process but NOT safe to call in a forked child without
// disturbing the parent — use Free there instead.
func (d *Dispatcher) Cleanup() error {
	if d.exiting {
		return nil
	}
	d.exiting = true

	var live []*Event
	d.table.forEach(func(evt *Event) { live = append(live, evt) })
	for _, evt := range live {
		if evt.fd != noFD {
			d.poller.delete(evt.fd)
		}
		if evt.Cleanup != nil {
			evt.Cleanup(evt)
		}
	}
	d.table = table{}
	d.timeout.reset()
	d.exiting = false
	return nil
}

// Free is the "after fork" teardown variant: it calls every
// registered event's Cleanup callback and closes the dispatcher's own
// file descriptors (epoll fd, timer fd), but never touches
// kernel-visible state via epoll_ctl/timerfd_settime — those would
// affect the parent process too, since the kernel objects are shared
// across fork. Safe to call in a child right after fork().
func (d *Dispatcher) Free() {
	var live []*Event
	d.table.forEach(func(evt *Event) { live = append(live, evt) })
	for _, evt := range live {
		if evt.Cleanup != nil {
			evt.Cleanup(evt)
		}
	}
	closeFD(d.timeout.ev.fd)
	closeFD(d.poller.epfd)
}
