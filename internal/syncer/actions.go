package syncer

import (
	"context"
	"fmt"

	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/recordstore"
)

// Create inserts rec as a personal agent, makes it current and writes both
// the record and the pointer. The local view changes before any remote
// round trip.
func (e *Engine) Create(rec domain.AgentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("create: empty agent id")
	}
	if !rec.Voice.Valid() {
		return fmt.Errorf("create %s: unknown voice %q", rec.ID, rec.Voice)
	}
	if err := e.checkRunning(); err != nil {
		return err
	}
	inserted := e.store.Update(func(st recordstore.State) recordstore.Mutation {
		if _, _, ok := st.Find(rec.ID); ok {
			return nil
		}
		e.unconfirmed.created(rec)
		return recordstore.Insert{Record: rec}
	})
	if !inserted {
		return fmt.Errorf("create %s: %w", rec.ID, ErrDuplicateID)
	}
	e.clearPendingPointer()
	e.log.Info().Str("id", rec.ID).Str("name", rec.Name).Msg("agent created")

	c := e.opts.Collections
	fields := rec.Fields()
	if err := e.submit(writeOp{
		op:         "create",
		collection: c.Agents,
		id:         rec.ID,
		run: func(ctx context.Context) error {
			return e.dir.SetDoc(ctx, c.Agents, rec.ID, fields, false)
		},
	}); err != nil {
		return err
	}
	return e.writePointer(rec.ID)
}

// Update replaces one field of an agent locally and schedules a debounced
// merge-write of it.
func (e *Engine) Update(id string, field domain.Field, value string) error {
	if _, err := domain.ParseField(string(field)); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if field == domain.FieldVoice {
		if _, err := domain.ParseVoice(value); err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
	}
	if err := e.checkRunning(); err != nil {
		return err
	}
	if _, _, ok := e.store.Get().Find(id); !ok {
		return fmt.Errorf("update %s: %w", id, ErrUnknownRecord)
	}

	patch := domain.Patch{field: value}
	changed := e.store.Update(func(st recordstore.State) recordstore.Mutation {
		if r, _, ok := st.Find(id); !ok || r.Get(field) == value {
			return nil
		}
		e.unconfirmed.edited(id, patch)
		return recordstore.ReplaceField{ID: id, Field: field, Value: value}
	})
	if changed {
		e.writer.Schedule(id, patch)
	}
	return nil
}

// Select makes id current and writes the pointer immediately.
func (e *Engine) Select(id string) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	if _, _, ok := e.store.Get().Find(id); !ok {
		return fmt.Errorf("select %s: %w", id, ErrUnknownRecord)
	}
	e.store.Apply(recordstore.SetCurrent{ID: id})
	e.clearPendingPointer()
	return e.writePointer(id)
}

// Flush writes the pending debounced edit for id now.
func (e *Engine) Flush(id string) bool { return e.writer.Flush(id) }

// FlushAll writes every pending debounced edit now.
func (e *Engine) FlushAll() int { return e.writer.FlushAll() }

// Pending returns the ids with unsent debounced edits.
func (e *Engine) Pending() []string { return e.writer.Pending() }

func (e *Engine) writePointer(id string) error {
	c := e.opts.Collections
	return e.submit(writeOp{
		op:         "select",
		collection: c.Config,
		id:         c.PointerDoc,
		run: func(ctx context.Context) error {
			return e.dir.SetDoc(ctx, c.Config, c.PointerDoc, map[string]any{PointerField: id}, true)
		},
	})
}

// flushPatch is the debounced writer's sink. The write carries every
// unconfirmed field of id, so fields of an earlier failed write go out again.
func (e *Engine) flushPatch(id string, patch domain.Patch) {
	c := e.opts.Collections
	fields := e.unconfirmed.flushing(id, patch).Fields()
	if err := e.submit(writeOp{
		op:         "update",
		collection: c.Agents,
		id:         id,
		run: func(ctx context.Context) error {
			return e.dir.SetDoc(ctx, c.Agents, id, fields, true)
		},
		done: func(err error) { e.unconfirmed.written(id, err) },
	}); err != nil {
		e.unconfirmed.written(id, err)
		e.log.Warn().Err(err).Str("id", id).Msg("debounced edit dropped")
	}
}

func (e *Engine) clearPendingPointer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingPointer = ""
}

func (e *Engine) checkRunning() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.disposed:
		return ErrDisposed
	case !e.started:
		return ErrNotStarted
	}
	return nil
}
