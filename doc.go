// Package govent implements a single-threaded, cooperative event
// dispatcher with integrated timeouts, ported from mwilck/minivent.
//
// # Architecture
//
// A [Dispatcher] owns three cooperating pieces: a readiness
// multiplexer over Linux epoll, a timeout engine backed by a kernel
// timerfd and a sorted pending-timeout list, and a registration table
// tracking every live [Event]. There is exactly one blocking call per
// wake-up — [Dispatcher.Wait]'s single epoll_pwait — so callbacks run
// on one call stack with no locking and no preemption.
//
// # Usage
//
//	dsp, err := govent.NewDispatcher(unix.CLOCK_MONOTONIC)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dsp.Cleanup()
//
//	evt := govent.NewOnStack(func(evt *govent.Event, events govent.IOEvents) govent.Verdict {
//		fmt.Println("fd ready:", events)
//		return govent.Continue
//	}, fd, govent.EventRead)
//	if err := dsp.Add(evt); err != nil {
//		log.Fatal(err)
//	}
//
//	var mask unix.Sigset_t
//	govent.FillSigset(&mask)
//	govent.DelSignal(&mask, unix.SIGINT)
//	if err := dsp.Run(&mask, nil); err != nil {
//		log.Println("loop exited:", err)
//	}
//
// # Timeouts
//
// Every [Event] may carry a [Timespec] timeout, relative or absolute
// ([Event.SetAbsolute]). [Dispatcher.ModTimeout] re-arms it, typically
// from inside the event's own callback — a timeout is one-shot once
// fired. A callback learns why it was invoked from [Event.Reason].
//
// # Fork safety
//
// [Dispatcher.Cleanup] tears down kernel-visible state (epoll
// registrations, the armed timer) and is the right call in a
// still-running process. [Dispatcher.Free] does not touch any
// kernel-visible state shared with a parent process across fork; it
// only runs [Event] cleanup callbacks and closes the dispatcher's own
// descriptors, and is the right call in a forked child.
package govent
