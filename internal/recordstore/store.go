// Package recordstore is the in-memory, listener-notifying cache of agent
// records and the current pointer.
//
// The store is pure: it performs no I/O. Every change goes through Apply or
// Update, which serialize on a single mutex, and every accepted change
// produces exactly one invocation of each registered listener. Changes that
// leave the state content-equal are rejected and notify nobody.
package recordstore

import (
	"slices"
	"sync"

	"github.com/soyeahso/roster/internal/domain"
)

// State is a snapshot of the directory plus the current pointer. Slices in a
// State returned by the store are never mutated afterwards.
type State struct {
	Presets  []domain.AgentRecord
	Personal []domain.AgentRecord
	Current  domain.AgentRecord
}

// Find resolves an id against both partitions, personal first.
func (s State) Find(id string) (domain.AgentRecord, domain.Partition, bool) {
	if i := indexOf(s.Personal, id); i >= 0 {
		return s.Personal[i], domain.PartitionPersonal, true
	}
	if i := indexOf(s.Presets, id); i >= 0 {
		return s.Presets[i], domain.PartitionPreset, true
	}
	return domain.AgentRecord{}, "", false
}

// IsPreset reports whether id names a preset.
func (s State) IsPreset(id string) bool {
	return indexOf(s.Presets, id) >= 0
}

// All returns presets followed by personal records.
func (s State) All() []domain.AgentRecord {
	out := make([]domain.AgentRecord, 0, len(s.Presets)+len(s.Personal))
	out = append(out, s.Presets...)
	return append(out, s.Personal...)
}

// Equal reports deep content equality. Personal records compare as a set
// keyed by id, since remote snapshots do not preserve local insertion order.
func (s State) Equal(o State) bool {
	return s.Current == o.Current &&
		slices.Equal(s.Presets, o.Presets) &&
		sameSet(s.Personal, o.Personal)
}

func indexOf(records []domain.AgentRecord, id string) int {
	return slices.IndexFunc(records, func(r domain.AgentRecord) bool { return r.ID == id })
}

func sameSet(a, b []domain.AgentRecord) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]domain.AgentRecord, len(a))
	for _, r := range a {
		byID[r.ID] = r
	}
	for _, r := range b {
		if prev, ok := byID[r.ID]; !ok || prev != r {
			return false
		}
	}
	return true
}

// Listener observes accepted state transitions.
type Listener func(next, prev State)

type transition struct {
	next, prev State
}

// Store holds the local cache.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64

	// pending transitions are delivered by whichever caller is draining, so
	// listeners see changes in order even when a listener calls Apply.
	pending  []transition
	draining bool
}

// New creates a store seeded with the given presets. The current pointer
// starts at currentID when it names a preset, otherwise at the first preset.
func New(presets []domain.AgentRecord, currentID string) *Store {
	st := State{Presets: slices.Clone(presets)}
	if i := indexOf(st.Presets, currentID); i >= 0 {
		st.Current = st.Presets[i]
	} else if len(st.Presets) > 0 {
		st.Current = st.Presets[0]
	}
	return &Store{
		state:     st,
		listeners: make(map[uint64]Listener),
	}
}

// Get returns the latest applied state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Presets:  slices.Clone(s.state.Presets),
		Personal: slices.Clone(s.state.Personal),
		Current:  s.state.Current,
	}
}

// Current returns the current record.
func (s *Store) Current() domain.AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Current
}

// Subscribe registers a listener. The returned function unregisters it and
// is safe to call more than once.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			s.order = slices.DeleteFunc(s.order, func(x uint64) bool { return x == id })
		})
	}
}

// Apply runs a mutation and reports whether it changed the state.
func (s *Store) Apply(m Mutation) bool {
	return s.Update(func(State) Mutation { return m })
}

// Update computes a mutation from the current state and applies it in the
// same critical section, so the decision cannot be invalidated by a
// concurrent Apply. A nil mutation is a no-op.
func (s *Store) Update(fn func(State) Mutation) bool {
	s.mu.Lock()
	m := fn(s.state)
	if m == nil {
		s.mu.Unlock()
		return false
	}
	next, changed := m.apply(s.state)
	if !changed || next.Equal(s.state) {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = next
	s.pending = append(s.pending, transition{next: next, prev: prev})
	if s.draining {
		s.mu.Unlock()
		return true
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return true
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		t := s.pending[0]
		s.pending = s.pending[1:]
		listeners := make([]Listener, 0, len(s.order))
		for _, id := range s.order {
			listeners = append(listeners, s.listeners[id])
		}
		s.mu.Unlock()

		for _, l := range listeners {
			l(t.next, t.prev)
		}
	}
}
