//go:build linux

package govent

import "golang.org/x/sys/unix"

// golang.org/x/sys/unix exposes unix.Sigset_t's raw layout (needed by
// EpollPwait) but not glibc's sigfillset/sigaddset/sigdelset helpers
// (no pack example manipulates a raw sigset_t at all — this is
// original glue over the struct the pack already imports, justified
// in DESIGN.md). Sigset_t is a fixed array of uint64 words, one bit
// per signal.

const sigsetWordBits = 64

// FillSigset sets every bit in *set, blocking all signals.
func FillSigset(set *unix.Sigset_t) {
	for i := range set.Val {
		set.Val[i] = ^uint64(0)
	}
}

// EmptySigset clears every bit in *set.
func EmptySigset(set *unix.Sigset_t) {
	for i := range set.Val {
		set.Val[i] = 0
	}
}

// AddSignal adds sig to *set (1-indexed, as in sigaddset(3)).
func AddSignal(set *unix.Sigset_t, sig unix.Signal) {
	s := uint(sig) - 1
	set.Val[s/sigsetWordBits] |= 1 << (s % sigsetWordBits)
}

// DelSignal removes sig from *set.
func DelSignal(set *unix.Sigset_t, sig unix.Signal) {
	s := uint(sig) - 1
	set.Val[s/sigsetWordBits] &^= 1 << (s % sigsetWordBits)
}
