package govent

import "golang.org/x/sys/unix"

// timeoutEngine maintains the ordered list of pending timeouts, keyed
// by pointer identity to each live event's embedded Timespec, and
// keeps a kernel timerfd armed to the earliest expiry. Ported from
// _examples/original_source/timeout.c's struct timeout_handler.
type timeoutEngine struct {
	source int32
	list   []*Timespec // ascending by Compare; pointer-identity keys
	// owner recovers the Event owning a given *Timespec. Go has no
	// container_of, so this explicit back-reference substitutes for
	// the original's pointer-arithmetic trick.
	owner  map[*Timespec]*Event
	expiry Timespec // last value armed into the kernel timer
	ev     *Event   // the dedicated timer event (fd, callback)
}

// newTimeoutEngine creates the kernel timerfd and the dedicated Event
// the dispatcher installs via its internal add path (never through
// the registration table).
func newTimeoutEngine(source int32) (*timeoutEngine, error) {
	fd, err := timerfdCreate(source)
	if err != nil {
		return nil, err
	}
	te := &timeoutEngine{source: source, owner: make(map[*Timespec]*Event)}
	te.ev = &Event{
		fd:       fd,
		interest: EventRead,
	}
	te.ev.Callback = te.onTimerFire
	return te, nil
}

func (te *timeoutEngine) clockSource() int32 { return te.source }

func (te *timeoutEngine) close() {
	closeFD(te.ev.fd)
}

// rearm re-programs the kernel timer to the front of the list (or
// disarms it if empty), skipping the syscall when the expiry hasn't
// actually changed, to avoid needless timerfd_settime thrashing.
func (te *timeoutEngine) rearm(pos int) error {
	var value Timespec
	if pos < len(te.list) {
		value = *te.list[pos]
	}
	if Compare(value, te.expiry) == 0 {
		return nil
	}
	if err := timerfdSettimeAbs(te.ev.fd, value); err != nil {
		return err
	}
	te.expiry = value
	return nil
}

func now(source int32) (Timespec, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(int(source), &ts); err != nil {
		return Timespec{}, wrapErrno("clock_gettime", err)
	}
	return Timespec{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}, nil
}

// absoluteTimespec adds the engine's current clock reading to *ts in
// place, converting a relative timeout to absolute.
func (te *timeoutEngine) absoluteTimespec(ts *Timespec) error {
	n, err := now(te.source)
	if err != nil {
		return err
	}
	ts.Sec += n.Sec
	ts.Nsec += n.Nsec
	return nil
}

// add inserts evt's timeout into the sorted list. A zero timeout is a
// no-op. Duplicate identity (the event already present) fails with
// ErrAlreadyPresent. Relative timeouts are converted to absolute
// in-place unless TmoAbs is set.
func (te *timeoutEngine) add(evt *Event) error {
	if evt.timeout.IsZero() {
		return nil
	}
	for _, p := range te.list {
		if p == &evt.timeout {
			return ErrAlreadyPresent
		}
	}
	if evt.flags&TmoAbs == 0 {
		if err := te.absoluteTimespec(&evt.timeout); err != nil {
			return err
		}
	}
	pos, err := Insert(&te.list, &evt.timeout)
	if err != nil {
		return err
	}
	te.owner[&evt.timeout] = evt
	if pos == 0 {
		return te.rearm(0)
	}
	return nil
}

// cancel removes evt's timeout from the list by pointer identity. If
// evt has no timeout, this is a no-op. If the pointer isn't found —
// normal when called from inside a timeout callback, where the entry
// has already been detached for invocation — the timeout field is
// still zeroed and ErrNotPresent is returned so callers can tell the
// difference if they care.
func (te *timeoutEngine) cancel(evt *Event) error {
	if evt.timeout.IsZero() {
		return nil
	}
	ts := &evt.timeout
	pos := -1
	for i, p := range te.list {
		if p == ts {
			pos = i
			break
		}
	}
	if pos < 0 {
		*ts = zeroTimespec
		return ErrNotPresent
	}
	*ts = zeroTimespec
	delete(te.owner, ts)
	te.list = append(te.list[:pos], te.list[pos+1:]...)
	if pos == 0 {
		return te.rearm(0)
	}
	return nil
}

// modify is the correctness-critical operation from timeout_modify:
// move evt's timeout entry to reflect a new value, keeping the list
// sorted, without a full remove+reinsert when avoidable.
func (te *timeoutEngine) modify(evt *Event, next Timespec) error {
	if evt.timeout.IsZero() || len(te.list) == 0 {
		evt.timeout = next
		return te.add(evt)
	}
	if next.IsZero() {
		return te.cancel(evt)
	}
	if Compare(next, evt.timeout) == 0 {
		return nil
	}

	ts := &evt.timeout
	pmin := Search(te.list, ts)
	pos := -1
	for i := pmin; i < len(te.list) && Compare(*te.list[i], *ts) == 0; i++ {
		if te.list[i] == ts {
			pos = i
			break
		}
	}
	if pos < 0 {
		evt.timeout = next
		return te.add(evt)
	}

	if evt.flags&TmoAbs == 0 {
		if err := te.absoluteTimespec(&next); err != nil {
			return err
		}
	}
	next.Normalize()
	pnew := Search(te.list, &next)

	switch {
	case pnew > pos+1:
		pnew--
		copy(te.list[pos:pnew], te.list[pos+1:pnew+1])
		te.list[pnew] = ts
	case pnew < pos:
		copy(te.list[pnew+1:pos+1], te.list[pnew:pos])
		te.list[pnew] = ts
	default:
		// pnew == pos or pnew == pos+1: the pointer already sits at
		// its correct slot (te.list[pos] == ts), no shifting needed.
		// evt.timeout = next below updates the value in place since
		// the list stores the pointer, not a copy.
	}
	evt.timeout = next

	// NOTE: in the two shifting branches pnew is the entry's final
	// index; in the no-shift branch it may be pos+1 while the entry
	// stays at pos, matching the original's rearm check. The timer is
	// then not re-armed when the front entry moved back or grew in
	// place; it fires early at the old expiry, and onTimerFire's
	// unconditional rearm at the end of its drain loop is the safety
	// net — see onTimerFire below.
	if pnew == 0 {
		return te.rearm(0)
	}
	return nil
}

// reset drops all pending timeouts and disarms the kernel timer.
// Invoked by dispatcher teardown (cleanup_dispatcher).
func (te *timeoutEngine) reset() error {
	te.list = nil
	return te.rearm(0)
}

// invoke is the shared callback-invocation helper, used by both
// readiness dispatch (dispatcher.go) and timeout fan-out so both
// callers share identical semantics; the reentrancy guard is
// evt.Reason itself.
func invoke(evt *Event, reason Reason, bits IOEvents, resetReason bool) {
	if evt.Reason != ReasonNone {
		return
	}
	if evt.pending() {
		return
	}
	evt.Reason = reason
	verdict := evt.Callback(evt, bits)
	switch verdict {
	case Remove:
		evt.flags |= pendingRemove
	case Cleanup:
		evt.flags |= pendingCleanup
	}
	if resetReason {
		evt.Reason = ReasonNone
	}
}

// onTimerFire is the timer event's callback (timeout_event in the
// original): drain the timerfd counter, then repeatedly detach the
// prefix of expired entries and fire their callbacks, because a fired
// callback may itself add a timeout that is already expired.
func (te *timeoutEngine) onTimerFire(tmoEvt *Event, bits IOEvents) Verdict {
	if tmoEvt.Reason != ReasonEventOccurred || bits&^EventRead != 0 {
		WARN("unexpected reason %s, events 0x%08x\n", tmoEvt.Reason, uint32(bits))
		return Continue
	}

	if err := timerfdRead(tmoEvt.fd); err != nil {
		ERR("failed to read timerfd: %s\n", err)
	}

	n, err := now(te.source)
	if err != nil {
		ERR("clock_gettime failed: %s\n", err)
		return Continue
	}

	for len(te.list) > 0 {
		pos := 0
		for pos < len(te.list) && Compare(*te.list[pos], n) <= 0 {
			pos++
		}
		if pos == 0 {
			break
		}
		expired := te.list[:pos]
		detached := make([]*Timespec, pos)
		copy(detached, expired)
		te.list = te.list[pos:]

		for _, ts := range detached {
			evt, ok := te.owner[ts]
			delete(te.owner, ts)
			if !ok {
				continue
			}
			invoke(evt, ReasonTimeout, 0, true)
		}
	}

	if err := te.rearm(0); err != nil {
		ERR("failed to rearm timer: %s\n", err)
	}
	return Continue
}
