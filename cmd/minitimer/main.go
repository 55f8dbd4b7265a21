// Command minitimer restores the scenario from
// _examples/original_source/main.c: N periodic timerfds with random
// initial delay and interval, each also carrying a backup dispatcher
// timeout that its callback re-sets to a random 0-3 s (0 cancels it),
// plus one pure dispatcher-timeout event that stops the
// loop once a runtime budget elapses. SIGINT/SIGTERM also stop it,
// mirroring helpers.c's init_signals/must_exit.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	govent "github.com/mwilck/govent"
)

const (
	nTimers  = 8
	runtime  = 10 * time.Second
	maxCalls = 50
)

type periodicTimer struct {
	instance int
	count    int
}

func armTimerFD(initial, interval time.Duration) (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, err
	}
	it := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(initial.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, &it, nil); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func main() {
	dsp, err := govent.NewDispatcher(unix.CLOCK_MONOTONIC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "new dispatcher: %s\n", err)
		os.Exit(1)
	}
	defer dsp.Cleanup()

	must_exit := false
	fini := govent.NewOnStack(func(evt *govent.Event, events govent.IOEvents) govent.Verdict {
		fmt.Println("runtime elapsed, exiting")
		must_exit = true
		unix.Kill(os.Getpid(), syscall.SIGINT)
		return govent.Continue
	}, -1, 0)
	fini.SetAbsolute(false)
	if err := dsp.Add(fini); err != nil {
		fmt.Fprintf(os.Stderr, "add fini: %s\n", err)
		os.Exit(1)
	}
	if err := dsp.ModTimeout(fini, govent.Timespec{Sec: int64(runtime.Seconds())}); err != nil {
		fmt.Fprintf(os.Stderr, "arm fini: %s\n", err)
		os.Exit(1)
	}

	for i := 0; i < nTimers; i++ {
		initial := time.Duration(5+rand.Intn(5)) * 100 * time.Millisecond
		interval := time.Duration(1+rand.Intn(4)) * time.Second
		fd, err := armTimerFD(initial, interval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "timerfd %d: %s\n", i, err)
			continue
		}

		pt := &periodicTimer{instance: i}
		evt := govent.NewOnStack(func(evt *govent.Event, events govent.IOEvents) govent.Verdict {
			if evt.Reason == govent.ReasonTimeout {
				fmt.Printf("%d %d: backup timeout fired\n", pt.instance, pt.count)
			} else {
				var val [8]byte
				if _, err := unix.Read(evt.FD(), val[:]); err != nil && err != unix.EAGAIN {
					fmt.Fprintf(os.Stderr, "%d: read timerfd: %s\n", pt.instance, err)
				}
				fmt.Printf("%d %d: tick\n", pt.instance, pt.count)
			}

			pt.count++
			if pt.count >= maxCalls {
				return govent.Cleanup
			}

			evt.SetAbsolute(false)
			next := govent.Timespec{Sec: int64(rand.Intn(4))}
			if err := dsp.ModTimeout(evt, next); err != nil {
				fmt.Fprintf(os.Stderr, "%d: mod timeout: %s\n", pt.instance, err)
			}
			return govent.Continue
		}, fd, govent.EventRead)

		if err := dsp.Add(evt); err != nil {
			fmt.Fprintf(os.Stderr, "add timer %d: %s\n", i, err)
			unix.Close(fd)
		}
	}

	var mask unix.Sigset_t
	govent.FillSigset(&mask)
	govent.DelSignal(&mask, unix.SIGINT)
	govent.DelSignal(&mask, unix.SIGTERM)

	fmt.Println("start")
	for !must_exit {
		if _, err := dsp.Wait(&mask); err != nil {
			if de, ok := err.(*govent.DispatchError); ok && de.Interrupted() {
				fmt.Println("exit signal received")
				break
			}
			fmt.Fprintf(os.Stderr, "wait: %s\n", err)
			os.Exit(1)
		}
	}
}
