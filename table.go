package govent

import "math"

// lenChunk mirrors LEN_CHUNK in the original event.c: the registration
// table's capacity grows and shrinks in fixed-size steps.
const lenChunk = 8

// maxTableCap is the domain's sanity ceiling on table capacity (see
// DESIGN.md, Open Question 3: Go has no realloc-failure equivalent,
// so this stands in for the original's implicit size_t/UINT_MAX
// ceiling).
const maxTableCap = math.MaxInt32

// table is the dispatcher's registration table (C3): a growable slice
// of event-record handles with explicit bookkeeping of the high-water
// mark and free-slot count, ported from event.c's
// _dispatcher_{increase,find,add,gc,remove}.
type table struct {
	events []*Event // len(events) == capacity (len)
	n      int      // high-water mark: slots [0, n) may be occupied
	free   int      // count of nil slots within [0, n)
}

func (t *table) increase() error {
	if len(t.events) >= maxTableCap-lenChunk {
		return ErrOverflow
	}
	grown := make([]*Event, len(t.events)+lenChunk)
	copy(grown, t.events)
	t.events = grown
	DBG("new table size: %d\n", len(t.events))
	return nil
}

// find returns the index of evt in [0, n), or -1 if not present.
func (t *table) find(evt *Event) int {
	for i := 0; i < t.n; i++ {
		if t.events[i] == evt {
			return i
		}
	}
	return -1
}

// add registers evt, preferring an existing nil slot (self-healing: if
// free > 0 but no nil slot is actually found, the free counter is
// reset to 0 rather than trusted — event.c's _dispatcher_add does the
// same repair).
func (t *table) add(evt *Event) error {
	if t.find(evt) >= 0 {
		return ErrAlreadyPresent
	}

	if t.free > 0 {
		i := 0
		for ; i < t.n; i++ {
			if t.events[i] == nil {
				break
			}
		}
		if i == t.n {
			WARN("free=%d, but no empty slot found\n", t.free)
			t.free = 0
		} else {
			t.events[i] = evt
			t.free--
			DBG("new event @%d, %d/%d/%d free\n", i, t.free, t.n, len(t.events))
			return nil
		}
	}

	if len(t.events) == t.n {
		if err := t.increase(); err != nil {
			return err
		}
	}

	t.events[t.n] = evt
	t.n++
	DBG("new event @%d, %d/%d/%d free\n", t.n, t.free, t.n, len(t.events))
	return nil
}

// remove nulls evt's slot, maintaining the n/free bookkeeping, and
// runs gc unless doGC is false. Returns ErrNotPresent if evt isn't
// registered.
//
// A caller retiring a batch of events in one pass (a sweep after a
// dispatcher wake-up) should pass doGC=false for each individual
// removal and call gc once at the end, so compaction sees the whole
// batch's free count instead of triggering partway through it.
func (t *table) remove(evt *Event, doGC bool) error {
	i := t.find(evt)
	if i < 0 {
		WARN("event not found\n")
		return ErrNotPresent
	}

	t.events[i] = nil
	if i == t.n-1 {
		t.n--
	} else {
		t.free++
	}
	DBG("removed event @%d, %d/%d/%d free\n", i, t.free, t.n, len(t.events))

	if !doGC {
		return nil
	}
	return t.gc()
}

// gc compacts null gaps (preserving relative order of live entries)
// once free exceeds n/4, then halves capacity if that leaves the
// table well below half-full and above the minimum size — the
// hysteresis that prevents growth/shrink oscillation.
func (t *table) gc() error {
	if t.free <= t.n/4 {
		return nil
	}

	n := t.n
	for i := n; i > 0; i-- {
		if t.events[i-1] != nil {
			continue
		}
		j := i - 1
		for j > 0 && t.events[j-1] == nil {
			j--
		}
		copy(t.events[j:], t.events[i:t.n])
		n -= i - j
		if j == 0 {
			break
		}
		i = j
	}

	if t.n-n != t.free {
		ERR("error: %d != %d\n", t.free, t.n-n)
	} else {
		DBG("collected %d slots\n", t.free)
		t.n = n
		t.free = 0
	}

	for i := 0; i < t.n; i++ {
		if t.events[i] == nil {
			ERR("error at %d\n", i)
		}
	}

	if len(t.events) <= 2*lenChunk || t.n >= len(t.events)/2 {
		return nil
	}

	shrunk := make([]*Event, len(t.events)/2)
	copy(shrunk, t.events[:len(shrunk)])
	t.events = shrunk
	DBG("new size: %d/%d\n", t.n, len(t.events))
	return nil
}

// forEach visits every live entry, in table order. Used by teardown
// (cleanup_dispatcher) to run cleanup callbacks.
func (t *table) forEach(fn func(evt *Event)) {
	for i := 0; i < t.n; i++ {
		if t.events[i] != nil {
			fn(t.events[i])
		}
	}
}
