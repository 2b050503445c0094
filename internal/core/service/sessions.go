package service

import (
	"context"

	"github.com/yndnr/authmesh-go/internal/telemetry/metric"
	"github.com/yndnr/authmesh-go/pkg/crypto/srp"
	"github.com/yndnr/authmesh-go/pkg/frame"
	"github.com/yndnr/authmesh-go/pkg/hashtab"
)

type entryState uint8

const (
	entryBlocked entryState = iota
	entryPending
	entryLive
)

func (s entryState) String() string {
	switch s {
	case entryPending:
		return "pending"
	case entryLive:
		return "live"
	default:
		return "blocked"
	}
}

// entry is the authentication progress of one origin.
type entry struct {
	state entryState

	// live
	auth *srp.Authenticator

	// pending
	ticket uint64
	cancel context.CancelFunc
	parked *frame.Frame
}

// release frees what the entry owns: it destroys a live authenticator and
// cancels an in-flight lookup.
func (e *entry) release() {
	if e.auth != nil {
		e.auth.Destroy()
		e.auth = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.parked = nil
}

// sessionIndex maps origins to entries. It is owned by the dispatch
// goroutine and has no locks.
type sessionIndex struct {
	tab    *hashtab.Table[uint64, *entry]
	counts [3]int
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{tab: hashtab.New[uint64, *entry](hashtab.HashUint64)}
}

func (s *sessionIndex) contains(origin uint64) bool {
	return s.tab.Contains(origin)
}

func (s *sessionIndex) get(origin uint64) (*entry, bool) {
	return s.tab.Lookup(origin)
}

// insert adds an entry for a new origin. It fails when one exists.
func (s *sessionIndex) insert(origin uint64, e *entry) bool {
	if !s.tab.Insert(origin, e) {
		return false
	}
	s.counts[e.state]++
	return true
}

// set stores e for origin and releases the entry it replaces.
func (s *sessionIndex) set(origin uint64, e *entry) {
	old, ok := s.tab.Replace(origin, e)
	if ok {
		s.counts[old.state]--
		if old != e {
			old.release()
		}
	}
	s.counts[e.state]++
}

// block replaces any entry for origin with a blocked one.
func (s *sessionIndex) block(origin uint64) {
	s.set(origin, &entry{state: entryBlocked})
}

// promote moves a pending entry to live.
func (s *sessionIndex) promote(e *entry, auth *srp.Authenticator) {
	s.counts[e.state]--
	e.state = entryLive
	e.auth = auth
	e.cancel = nil
	e.parked = nil
	s.counts[e.state]++
}

// remove deletes and releases the entry for origin.
func (s *sessionIndex) remove(origin uint64) bool {
	idx, ok := s.tab.Get(origin)
	if !ok {
		return false
	}
	e := s.tab.Value(idx)
	e.release()
	s.counts[e.state]--
	s.tab.Remove(idx, true)
	return true
}

// clear releases every entry.
func (s *sessionIndex) clear() {
	s.tab.Iterate(func(idx int) hashtab.IterAction {
		s.tab.Value(idx).release()
		return hashtab.Continue
	})
	s.tab.Clear()
	s.counts = [3]int{}
}

func (s *sessionIndex) len() int {
	return s.tab.Len()
}

func (s *sessionIndex) stats() metric.SessionStats {
	return metric.SessionStats{
		Blocked:  s.counts[entryBlocked],
		Pending:  s.counts[entryPending],
		Live:     s.counts[entryLive],
		Capacity: s.tab.Cap(),
		Occupied: s.tab.Occupied(),
	}
}
