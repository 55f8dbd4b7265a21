//go:build linux

package govent

import "golang.org/x/sys/unix"

// timerfd wrappers, built on the same golang.org/x/sys/unix package
// poller_linux.go already uses for the analogous epoll syscalls.

func timerfdCreate(clockSource int32) (int, error) {
	fd, err := unix.TimerfdCreate(int(clockSource), unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, wrapErrno("timerfd_create", err)
	}
	return fd, nil
}

// timerfdSettimeAbs arms fd to fire once at the absolute time value,
// or disarms it if value is the zero Timespec. Mirrors
// timerfd_settime(fd, TFD_TIMER_ABSTIME, &it, NULL) in _timeout_rearm.
func timerfdSettimeAbs(fd int, value Timespec) error {
	it := unix.ItimerSpec{
		Interval: unix.Timespec{Sec: 0, Nsec: 0},
		Value:    unix.Timespec{Sec: value.Sec, Nsec: value.Nsec},
	}
	err := unix.TimerfdSettime(fd, unix.TFD_TIMER_ABSTIME, &it, nil)
	if err != nil {
		return wrapErrno("timerfd_settime", err)
	}
	return nil
}

// timerfdRead discards the expiration counter, ignoring EAGAIN: the
// most recent timer may have been cancelled and re-armed before we
// got here (timeout_event's comment in the original).
func timerfdRead(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return wrapErrno("read(timerfd)", err)
	}
	return nil
}
