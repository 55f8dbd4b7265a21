package govent

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	d, err := NewDispatcher(unix.CLOCK_MONOTONIC)
	require.NoError(t, err)
	t.Cleanup(func() { d.Cleanup() })
	return d
}

// TestDispatcherTimerOnly covers a single timer event with no fds
// registered, woken purely by the timerfd.
func TestDispatcherTimerOnly(t *testing.T) {
	d := newTestDispatcher(t)

	fired := make(chan struct{}, 1)
	timer := NewTimerOnStack(func(arg interface{}) {
		fired <- struct{}{}
	}, nil, Timespec{Nsec: 20_000_000})
	require.NoError(t, d.Add(&timer.Event))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := d.Wait(nil)
		require.NoError(t, err)
		select {
		case <-fired:
			return
		default:
		}
	}
	t.Fatal("timer never fired")
}

// TestDispatcherReadinessCallback covers the pipe-readiness path: a
// write on one end wakes the dispatcher registered on the read end.
func TestDispatcherReadinessCallback(t *testing.T) {
	d := newTestDispatcher(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	var got IOEvents
	var calls int32
	evt := NewOnStack(func(evt *Event, events IOEvents) Verdict {
		atomic.AddInt32(&calls, 1)
		got = events
		require.Equal(t, ReasonEventOccurred, evt.Reason)
		return Continue
	}, int(r.Fd()), EventRead)
	evt.Cleanup = nil // fd owned by *os.File, not by Cleanup
	require.NoError(t, d.Add(evt))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	_, err = d.Wait(nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.NotZero(t, got&EventRead)

	require.NoError(t, d.Remove(evt))
}

// TestDispatcherDeferredRemoval covers the Remove/Cleanup verdict
// path: a callback requesting Cleanup must be swept out of the table,
// and its Cleanup func must run, by the end of the same Wait call.
func TestDispatcherDeferredRemoval(t *testing.T) {
	d := newTestDispatcher(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	cleaned := make(chan struct{}, 1)
	evt := NewOnStack(func(evt *Event, events IOEvents) Verdict {
		return Cleanup
	}, int(r.Fd()), EventRead)
	evt.Cleanup = func(evt *Event) { cleaned <- struct{}{} }
	require.NoError(t, d.Add(evt))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	_, err = d.Wait(nil)
	require.NoError(t, err)

	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup callback did not run")
	}
	require.Nil(t, evt.dsp)
	require.Equal(t, -1, d.table.find(evt))
}

// TestDispatcherModTimeoutRearm covers re-arming a timeout from inside
// its own callback, the periodic-timer idiom used by cmd/minitimer.
func TestDispatcherModTimeoutRearm(t *testing.T) {
	d := newTestDispatcher(t)

	var fires int32
	var evt *Event
	evt = NewOnStack(func(e *Event, events IOEvents) Verdict {
		n := atomic.AddInt32(&fires, 1)
		if n < 3 {
			require.NoError(t, d.ModTimeout(evt, Timespec{Nsec: 10_000_000}))
		}
		return Continue
	}, noFD, 0)
	evt.timeout = Timespec{Nsec: 10_000_000}

	require.NoError(t, d.Add(evt))

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&fires) < 3 && time.Now().Before(deadline) {
		_, err := d.Wait(nil)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&fires), int32(3))
}

// TestDispatcherWaitInterrupted covers a signal delivered during
// epoll_pwait: it must surface as an interrupted DispatchError, not a
// fatal one.
func TestDispatcherWaitInterrupted(t *testing.T) {
	d := newTestDispatcher(t)

	var mask unix.Sigset_t
	EmptySigset(&mask)

	// Backstop timer so Wait returns even if the signal is handled on
	// another thread.
	backstop := NewTimerOnStack(func(arg interface{}) {}, nil, Timespec{Sec: 1})
	require.NoError(t, d.Add(&backstop.Event))

	pid := os.Getpid()
	go func() {
		time.Sleep(50 * time.Millisecond)
		unix.Kill(pid, syscall.SIGUSR1)
	}()

	_, err := d.Wait(&mask)
	if err == nil {
		// The signal may have been consumed by another thread before
		// epoll_pwait observed it; that's an acceptable outcome of
		// this test's inherent race, not a correctness failure.
		return
	}
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	require.True(t, de.Interrupted())
}

// TestDispatcherFreeSkipsKernelState documents Free's fork-safe
// contract: it must not fail or block even though it performs no
// epoll_ctl/timerfd_settime teardown, only Cleanup invocations and fd
// closes of the dispatcher's own descriptors.
func TestDispatcherFreeSkipsKernelState(t *testing.T) {
	d, err := NewDispatcher(unix.CLOCK_MONOTONIC)
	require.NoError(t, err)

	cleaned := make(chan struct{}, 1)
	evt := &Event{fd: noFD, Callback: func(evt *Event, events IOEvents) Verdict { return Continue }}
	evt.Cleanup = func(evt *Event) { cleaned <- struct{}{} }
	require.NoError(t, d.Add(evt))

	d.Free()

	select {
	case <-cleaned:
	default:
		t.Fatal("Free did not run Cleanup callback")
	}
}
