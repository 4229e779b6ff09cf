package syncer

import (
	"maps"
	"slices"
	"sync"

	"github.com/soyeahso/roster/internal/domain"
)

// unconfirmed holds local changes the directory has not echoed back yet:
// field edits that are waiting in the debouncer or in flight, and records
// created here whose create write has not shown up in a snapshot. Every
// collection snapshot is overlaid with it, so a snapshot taken before a
// write landed cannot revert the optimistic state.
type unconfirmed struct {
	mu      sync.Mutex
	acks    uint64
	edits   map[string]*unsentEdit
	creates map[string]domain.AgentRecord
	order   []string
}

type unsentEdit struct {
	patch    domain.Patch
	dirty    bool // edited since the last flush
	inflight int
	// acked is the ack sequence of the last successful write, 0 while the
	// latest edit is unwritten.
	acked uint64
}

func newUnconfirmed() *unconfirmed {
	return &unconfirmed{
		edits:   make(map[string]*unsentEdit),
		creates: make(map[string]domain.AgentRecord),
	}
}

func (u *unconfirmed) created(rec domain.AgentRecord) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.creates[rec.ID]; !ok {
		u.order = append(u.order, rec.ID)
	}
	u.creates[rec.ID] = rec
}

func (u *unconfirmed) edited(id string, p domain.Patch) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ed := u.edits[id]
	if ed == nil {
		ed = &unsentEdit{}
		u.edits[id] = ed
	}
	ed.patch = ed.patch.Merge(p)
	ed.dirty = true
	ed.acked = 0
}

// flushing marks a write of id as issued and returns every field of id the
// directory has not confirmed, which includes fields of earlier failed
// writes.
func (u *unconfirmed) flushing(id string, p domain.Patch) domain.Patch {
	u.mu.Lock()
	defer u.mu.Unlock()
	ed := u.edits[id]
	if ed == nil {
		ed = &unsentEdit{}
		u.edits[id] = ed
	}
	ed.patch = ed.patch.Merge(p)
	ed.dirty = false
	ed.inflight++
	return maps.Clone(ed.patch)
}

// written records the outcome of a write issued by flushing. A failed write
// leaves the edit in place.
func (u *unconfirmed) written(id string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ed := u.edits[id]
	if ed == nil {
		return
	}
	ed.inflight--
	if err != nil || ed.inflight > 0 || ed.dirty {
		return
	}
	u.acks++
	ed.acked = u.acks
}

// mark returns the ack sequence. A snapshot received after mark reflects
// every write acknowledged up to it.
func (u *unconfirmed) mark() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.acks
}

// overlay applies the unconfirmed changes to the decoded records of a
// snapshot received at seen. Creates whose echo is in the snapshot and
// edits the directory has settled are forgotten.
func (u *unconfirmed) overlay(records []domain.AgentRecord, seen uint64) []domain.AgentRecord {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]domain.AgentRecord, 0, len(records)+len(u.order))
	for _, rec := range records {
		if _, ok := u.creates[rec.ID]; ok {
			delete(u.creates, rec.ID)
			u.order = slices.DeleteFunc(u.order, func(id string) bool { return id == rec.ID })
		}
		if ed := u.edits[rec.ID]; ed != nil {
			if ed.settled(rec, seen) {
				delete(u.edits, rec.ID)
			} else {
				rec = rec.Apply(ed.patch)
			}
		}
		out = append(out, rec)
	}
	for _, id := range u.order {
		rec := u.creates[id]
		if ed := u.edits[id]; ed != nil {
			rec = rec.Apply(ed.patch)
		}
		out = append(out, rec)
	}
	return out
}

// pending reports how many edits and creates are still unconfirmed.
func (u *unconfirmed) pending() (edits, creates int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.edits), len(u.order)
}

// settled reports whether remote may replace the edit: nothing is waiting
// to be written, and the remote record either already carries the edit or
// was read after the last write was acknowledged.
func (ed *unsentEdit) settled(remote domain.AgentRecord, seen uint64) bool {
	if ed.dirty || ed.inflight > 0 {
		return false
	}
	if remote.Apply(ed.patch) == remote {
		return true
	}
	return ed.acked != 0 && ed.acked <= seen
}
