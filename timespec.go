package govent

import (
	"math"
	"sort"
)

const nsecPerSec = 1_000_000_000

// Timespec is a seconds-plus-nanoseconds time value, the unit used
// throughout govent for timeouts and expiries. It mirrors struct
// timespec: a normalized Timespec always has 0 <= Nsec < 1e9.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// zeroTimespec is the sentinel meaning "no timeout".
var zeroTimespec Timespec

// IsZero reports whether t is the "no timeout" sentinel (0, 0).
func (t Timespec) IsZero() bool {
	return t == zeroTimespec
}

// Normalize redistributes an out-of-range Nsec into Sec so that
// 0 <= Nsec < 1e9 holds afterward.
func (t *Timespec) Normalize() {
	if t.Nsec >= 0 && t.Nsec < nsecPerSec {
		return
	}
	quot := t.Nsec / nsecPerSec
	rem := t.Nsec % nsecPerSec
	if rem < 0 {
		rem += nsecPerSec
		quot--
	}
	t.Sec += quot
	t.Nsec = rem
}

// Add sets t to t+u, normalized. Both operands must already be
// normalized.
func (t *Timespec) Add(u Timespec) {
	t.Sec += u.Sec
	t.Nsec += u.Nsec
	t.Normalize()
}

// Subtract sets t to t-u, normalized.
func (t *Timespec) Subtract(u Timespec) {
	t.Sec -= u.Sec
	t.Nsec -= u.Nsec
	t.Normalize()
}

// Compare returns -1, 0 or 1 comparing a and b lexicographically on
// (Sec, Nsec). Both must be normalized.
func Compare(a, b Timespec) int {
	switch {
	case a.Sec < b.Sec:
		return -1
	case a.Sec > b.Sec:
		return 1
	case a.Nsec < b.Nsec:
		return -1
	case a.Nsec > b.Nsec:
		return 1
	default:
		return 0
	}
}

// Search returns the index in the ascending-sorted slice ts at which
// new would need to be inserted to keep ts sorted: the first index i
// with Compare(*ts[i], new) >= 0, or len(ts) if every element is
// smaller. new is normalized in place as a side effect, matching the
// original ts_search.
func Search(ts []*Timespec, new *Timespec) int {
	new.Normalize()
	n := len(ts)
	if n == 0 {
		return 0
	}
	high := n - 1
	if Compare(*new, *ts[high]) > 0 {
		return n
	}
	low := 0
	for high-low > 1 {
		mid := low + (high-low)/2
		if Compare(*new, *ts[mid]) <= 0 {
			high = mid
		} else {
			low = mid
		}
	}
	if high > low && Compare(*new, *ts[low]) > 0 {
		return high
	}
	return low
}

// Insert inserts new into the ascending-sorted slice pointed to by ts
// at its sorted position (via Search), growing *ts by one element.
// Returns the insertion index, or -1 with ErrOverflow if len(*ts)
// would exceed math.MaxInt32 (the domain's sanity cap — Go slices
// don't have the fixed-capacity ts_insert(..., size) has, so this
// guards against runaway growth rather than a literal fixed buffer).
func Insert(ts *[]*Timespec, new *Timespec) (int, error) {
	if len(*ts) >= math.MaxInt32 {
		return -1, ErrOverflow
	}
	pos := Search(*ts, new)
	*ts = append(*ts, nil)
	copy((*ts)[pos+1:], (*ts)[pos:len(*ts)-1])
	(*ts)[pos] = new
	return pos, nil
}

// Sort sorts ts ascending by Compare. Used for the bulk path and for
// cross-checking against repeated Insert in tests; any comparison sort
// consistent with Compare is fine here, so this uses the standard
// library rather than reimplementing qsort.
func Sort(ts []*Timespec) {
	sort.Slice(ts, func(i, j int) bool {
		return Compare(*ts[i], *ts[j]) < 0
	})
}
