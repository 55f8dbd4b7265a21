package govent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNudgeZeroTimeout(t *testing.T) {
	require.Equal(t, Timespec{Nsec: 1}, nudgeZeroTimeout(Timespec{}))
	require.Equal(t, Timespec{Sec: 3}, nudgeZeroTimeout(Timespec{Sec: 3}))
}

// TestNewTimerOnHeapFiresAndDrops builds a heap timer with a zero
// timeout, checks it fires promptly rather than never, and that its
// Cleanup drops the callback/cleanup references afterward.
func TestNewTimerOnHeapFiresAndDrops(t *testing.T) {
	d, err := NewDispatcher(unix.CLOCK_MONOTONIC)
	require.NoError(t, err)
	t.Cleanup(func() { d.Cleanup() })

	fired := make(chan int, 1)
	timer := NewTimerOnHeap(func(arg interface{}) {
		fired <- arg.(int)
	}, 42, Timespec{})
	require.False(t, timer.Event.timeout.IsZero())
	require.NoError(t, d.Add(&timer.Event))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := d.Wait(nil)
		require.NoError(t, err)
		select {
		case v := <-fired:
			require.Equal(t, 42, v)
			require.Nil(t, timer.Event.Callback)
			require.Nil(t, timer.Event.Cleanup)
			return
		default:
		}
	}
	t.Fatal("heap timer never fired")
}
