package recordstore

import (
	"slices"

	"github.com/soyeahso/roster/internal/domain"
)

// Mutation is a pure transition from one State to the next. A mutation that
// would not change anything reports false.
type Mutation interface {
	apply(State) (State, bool)
}

// Insert adds a new personal record and makes it current. Ids already present
// in either partition are rejected.
type Insert struct {
	Record domain.AgentRecord
}

func (m Insert) apply(s State) (State, bool) {
	if m.Record.ID == "" {
		return s, false
	}
	if _, _, ok := s.Find(m.Record.ID); ok {
		return s, false
	}
	s.Personal = append(slices.Clone(s.Personal), m.Record)
	s.Current = m.Record
	return s, true
}

// ReplaceField sets one field of the record with the given id, in whichever
// partition holds it. The current record is refreshed when it is the target.
type ReplaceField struct {
	ID    string
	Field domain.Field
	Value string
}

func (m ReplaceField) apply(s State) (State, bool) {
	changed := false
	replace := func(records []domain.AgentRecord) []domain.AgentRecord {
		i := indexOf(records, m.ID)
		if i < 0 {
			return records
		}
		updated := records[i].With(m.Field, m.Value)
		if updated == records[i] {
			return records
		}
		out := slices.Clone(records)
		out[i] = updated
		changed = true
		return out
	}
	s.Presets = replace(s.Presets)
	s.Personal = replace(s.Personal)
	if !changed {
		return s, false
	}
	if s.Current.ID == m.ID {
		if r, _, ok := s.Find(m.ID); ok {
			s.Current = r
		}
	}
	return s, true
}

// OverlayRemote merges a remote collection snapshot. Preset records replace
// their local counterparts by id, leaving preset order and any preset absent
// from the overlay untouched. Personal records replace the personal
// partition wholesale, including emptying it. Records whose id belongs to a
// preset never enter the personal partition. The current record is refreshed
// from the merged state when its id is still present.
type OverlayRemote struct {
	Presets  []domain.AgentRecord
	Personal []domain.AgentRecord
}

func (m OverlayRemote) apply(s State) (State, bool) {
	changed := false

	for _, r := range m.Presets {
		i := indexOf(s.Presets, r.ID)
		if i < 0 || s.Presets[i] == r {
			continue
		}
		if !changed {
			s.Presets = slices.Clone(s.Presets)
		}
		s.Presets[i] = r
		changed = true
	}

	personal := make([]domain.AgentRecord, 0, len(m.Personal))
	for _, r := range m.Personal {
		if r.ID == "" || s.IsPreset(r.ID) {
			continue
		}
		if i := indexOf(personal, r.ID); i >= 0 {
			personal[i] = r
			continue
		}
		personal = append(personal, r)
	}
	if !sameSet(s.Personal, personal) {
		s.Personal = personal
		changed = true
	}

	if r, _, ok := s.Find(s.Current.ID); ok && r != s.Current {
		s.Current = r
		changed = true
	}
	return s, changed
}

// SetCurrent moves the current pointer to the record with the given id.
// Unknown ids leave the state unchanged.
type SetCurrent struct {
	ID string
}

func (m SetCurrent) apply(s State) (State, bool) {
	r, _, ok := s.Find(m.ID)
	if !ok || r == s.Current {
		return s, false
	}
	s.Current = r
	return s, true
}
