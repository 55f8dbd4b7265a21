package govent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *timeoutEngine {
	te, err := newTimeoutEngine(clockMonotonicForTest)
	require.NoError(t, err)
	t.Cleanup(func() { te.close() })
	return te
}

// clockMonotonicForTest avoids importing unix just for one constant in
// this file; timerfd_linux.go/timeout.go already depend on it.
const clockMonotonicForTest = 1 // unix.CLOCK_MONOTONIC

func TestTimeoutAddCancel(t *testing.T) {
	te := newTestEngine(t)

	e1 := &Event{timeout: Timespec{Sec: 100}, flags: TmoAbs}
	e2 := &Event{timeout: Timespec{Sec: 50}, flags: TmoAbs}
	e3 := &Event{timeout: Timespec{Sec: 75}, flags: TmoAbs}

	require.NoError(t, te.add(e1))
	require.NoError(t, te.add(e2))
	require.NoError(t, te.add(e3))
	require.Len(t, te.list, 3)

	require.Equal(t, Timespec{Sec: 50}, *te.list[0])
	require.Equal(t, Timespec{Sec: 75}, *te.list[1])
	require.Equal(t, Timespec{Sec: 100}, *te.list[2])

	require.NoError(t, te.cancel(e3))
	require.Len(t, te.list, 2)
	require.Equal(t, Timespec{Sec: 50}, *te.list[0])
	require.Equal(t, Timespec{Sec: 100}, *te.list[1])

	// A non-zero timeout that is no longer in the list is reported as
	// not present (a zero timeout would make cancel a no-op).
	e3.timeout = Timespec{Sec: 75}
	require.ErrorIs(t, te.cancel(e3), ErrNotPresent)
}

func TestTimeoutModifyReordersList(t *testing.T) {
	te := newTestEngine(t)

	e1 := &Event{timeout: Timespec{Sec: 10}, flags: TmoAbs}
	e2 := &Event{timeout: Timespec{Sec: 20}, flags: TmoAbs}
	e3 := &Event{timeout: Timespec{Sec: 30}, flags: TmoAbs}
	require.NoError(t, te.add(e1))
	require.NoError(t, te.add(e2))
	require.NoError(t, te.add(e3))

	// Move e1 (front) to the back.
	require.NoError(t, te.modify(e1, Timespec{Sec: 35, Nsec: 0}))
	require.Equal(t, &e2.timeout, te.list[0])
	require.Equal(t, &e3.timeout, te.list[1])
	require.Equal(t, &e1.timeout, te.list[2])
	require.Equal(t, int64(35), e1.timeout.Sec)

	// Move e3 (now middle) to the front.
	require.NoError(t, te.modify(e3, Timespec{Sec: 5, Nsec: 0}))
	require.Equal(t, &e3.timeout, te.list[0])
	require.Equal(t, &e2.timeout, te.list[1])
	require.Equal(t, &e1.timeout, te.list[2])
}

func TestTimeoutModifyNoShift(t *testing.T) {
	te := newTestEngine(t)

	e1 := &Event{timeout: Timespec{Sec: 10}, flags: TmoAbs}
	e2 := &Event{timeout: Timespec{Sec: 20}, flags: TmoAbs}
	require.NoError(t, te.add(e1))
	require.NoError(t, te.add(e2))

	// e1 stays in front, just with a larger value within the same slot.
	require.NoError(t, te.modify(e1, Timespec{Sec: 15, Nsec: 0}))
	require.Equal(t, &e1.timeout, te.list[0])
	require.Equal(t, &e2.timeout, te.list[1])
	require.Equal(t, int64(15), e1.timeout.Sec)
}

// TestTimeoutRandomSequence runs random add/cancel/modify sequences
// and checks the list stays sorted and every owner pointer resolvable
// throughout.
func TestTimeoutRandomSequence(t *testing.T) {
	te := newTestEngine(t)
	rng := rand.New(rand.NewSource(7))

	pool := make([]*Event, 300)
	live := make(map[*Event]bool)
	for i := range pool {
		pool[i] = &Event{flags: TmoAbs}
	}

	for step := 0; step < 5000; step++ {
		e := pool[rng.Intn(len(pool))]
		switch {
		case !live[e]:
			e.timeout = Timespec{Sec: int64(rng.Intn(1000)), Nsec: int64(rng.Intn(int(nsecPerSec)))}
			require.NoError(t, te.add(e))
			live[e] = true
		case rng.Intn(3) == 0:
			require.NoError(t, te.cancel(e))
			delete(live, e)
		default:
			next := Timespec{Sec: int64(rng.Intn(1000)), Nsec: int64(rng.Intn(int(nsecPerSec)))}
			require.NoError(t, te.modify(e, next))
		}

		require.Len(t, te.list, len(live))
		for i := 1; i < len(te.list); i++ {
			require.LessOrEqual(t, Compare(*te.list[i-1], *te.list[i]), 0, "step %d: list not sorted", step)
		}
		for ts, owner := range te.owner {
			require.Equal(t, &owner.timeout, ts)
		}
	}
}

func TestTimeoutRearmSkipsRedundantSyscall(t *testing.T) {
	te := newTestEngine(t)

	e1 := &Event{timeout: Timespec{Sec: 10}, flags: TmoAbs}
	require.NoError(t, te.add(e1))
	before := te.expiry

	// Adding an event with the same expiry puts it at the front, so
	// rearm runs with an unchanged value: it must skip the syscall and
	// leave te.expiry untouched without erroring.
	e2 := &Event{timeout: Timespec{Sec: 10}, flags: TmoAbs}
	require.NoError(t, te.add(e2))
	require.Equal(t, before, te.expiry)
}
