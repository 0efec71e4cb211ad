package state

import (
	"sync"
	"sync/atomic"
)

// Reducer owns the current Snapshot. Writers are serialized; readers never
// block and always see a fully committed snapshot.
type Reducer struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewReducer returns a reducer holding an empty snapshot.
func NewReducer() *Reducer {
	r := &Reducer{}
	r.current.Store(&Snapshot{})
	return r
}

// Snapshot returns the latest committed snapshot. Callers must treat it as
// read-only.
func (r *Reducer) Snapshot() *Snapshot {
	return r.current.Load()
}

// ApplyDelta merges d into the current snapshot and commits the result.
func (r *Reducer) ApplyDelta(d Delta) *Snapshot {
	return r.commit(d.apply)
}

// SetLocation replaces the location, as done by cold-start rehydration.
func (r *Reducer) SetLocation(loc Location) *Snapshot {
	return r.ApplyDelta(Delta{Location: Some(loc)})
}

// SetGameTime replaces the in-world clock.
func (r *Reducer) SetGameTime(gt GameTime) *Snapshot {
	return r.ApplyDelta(Delta{GameTime: Some(gt)})
}

// SetParty merges a fetched party roster.
func (r *Reducer) SetParty(party []PartyMember) *Snapshot {
	if party == nil {
		party = []PartyMember{}
	}
	return r.ApplyDelta(Delta{Party: Some(party)})
}

// SetChapter replaces the chapter progress.
func (r *Reducer) SetChapter(ch Chapter) *Snapshot {
	return r.ApplyDelta(Delta{Chapter: Some(ch)})
}

// Reset discards all state, as on a session switch.
func (r *Reducer) Reset() *Snapshot {
	return r.commit(func(s *Snapshot) {
		*s = Snapshot{Version: s.Version}
	})
}

func (r *Reducer) commit(mutate func(*Snapshot)) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	next := prev.Clone()
	mutate(next)
	next.Version = prev.Version + 1
	r.current.Store(next)
	return next
}
