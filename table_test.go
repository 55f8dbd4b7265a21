package govent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func (t *table) invariantsOK() (int, bool) {
	nils := 0
	seen := make(map[*Event]bool, t.n)
	for i := 0; i < t.n; i++ {
		if t.events[i] == nil {
			nils++
			continue
		}
		if seen[t.events[i]] {
			return nils, false
		}
		seen[t.events[i]] = true
	}
	return nils, nils == t.free
}

func TestTableAddFindRemove(t *testing.T) {
	tbl := &table{}
	e1, e2, e3 := &Event{}, &Event{}, &Event{}

	require.NoError(t, tbl.add(e1))
	require.ErrorIs(t, tbl.add(e1), ErrAlreadyPresent)
	require.NoError(t, tbl.add(e2))
	require.NoError(t, tbl.add(e3))

	require.Equal(t, 0, tbl.find(e1))
	require.Equal(t, 2, tbl.find(e3))
	require.Equal(t, -1, tbl.find(&Event{}))

	require.NoError(t, tbl.remove(e2, true))
	require.ErrorIs(t, tbl.remove(e2, true), ErrNotPresent)

	nils, ok := tbl.invariantsOK()
	require.True(t, ok, "nils=%d free=%d", nils, tbl.free)
}

func TestTableGrowthAndShrink(t *testing.T) {
	tbl := &table{}
	var evts []*Event
	for i := 0; i < lenChunk*4; i++ {
		e := &Event{}
		evts = append(evts, e)
		require.NoError(t, tbl.add(e))
	}
	require.GreaterOrEqual(t, len(tbl.events), lenChunk*4)

	// remove most of them to trigger gc + halving
	for _, e := range evts[:len(evts)-2] {
		require.NoError(t, tbl.remove(e, true))
	}
	_, ok := tbl.invariantsOK()
	require.True(t, ok)
	require.Equal(t, 0, tbl.free)
}

// TestTableRandomSequence runs random add/remove sequences, checking
// invariants hold after every step and the final live count matches
// an external shadow set.
func TestTableRandomSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tbl := &table{}
	live := make(map[*Event]bool)
	pool := make([]*Event, 2000)
	for i := range pool {
		pool[i] = &Event{}
	}

	for step := 0; step < 20000; step++ {
		e := pool[rng.Intn(len(pool))]
		if live[e] {
			if rng.Intn(4) == 0 {
				require.NoError(t, tbl.remove(e, true))
				delete(live, e)
			} else {
				require.ErrorIs(t, tbl.add(e), ErrAlreadyPresent)
			}
		} else {
			require.NoError(t, tbl.add(e))
			live[e] = true
		}

		nils, ok := tbl.invariantsOK()
		require.True(t, ok, "step %d: nils=%d free=%d", step, nils, tbl.free)
		require.LessOrEqual(t, tbl.n, len(tbl.events))
	}

	count := 0
	tbl.forEach(func(evt *Event) { count++ })
	require.Equal(t, len(live), count)
}
