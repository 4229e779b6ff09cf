package syncer

import (
	"context"

	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/soyeahso/roster/internal/remote"
)

// reconcilePointer applies a pointer document snapshot. An id that does not
// resolve yet is remembered and retried after each collection snapshot.
func (e *Engine) reconcilePointer(snap remote.DocSnapshot) {
	if !snap.Exists {
		return
	}
	id, _ := snap.Doc.Fields[PointerField].(string)
	if id == "" {
		e.log.Warn().Msg("pointer document has no current id")
		return
	}
	if e.resolvePointer(id) {
		return
	}

	e.mu.Lock()
	e.pendingPointer = id
	e.mu.Unlock()
	e.log.Debug().Str("id", id).Msg("pointer does not resolve yet")
}

// resolvePointer makes id current if it names a known record.
func (e *Engine) resolvePointer(id string) bool {
	resolved := false
	e.store.Update(func(st recordstore.State) recordstore.Mutation {
		if _, _, ok := st.Find(id); !ok {
			return nil
		}
		resolved = true
		return recordstore.SetCurrent{ID: id}
	})
	if !resolved {
		return false
	}

	e.mu.Lock()
	e.pendingPointer = ""
	e.mu.Unlock()
	if e.pointer.Swap(int32(PointerSynced)) != int32(PointerSynced) {
		e.log.Debug().Str("id", id).Msg("pointer synced")
	}
	return true
}

// reconcileCollection classifies a collection snapshot into preset overlays
// and the personal set and applies both in one mutation. Local edits and
// creates the snapshot does not reflect yet are laid over it first. An
// empty snapshot triggers seeding instead.
func (e *Engine) reconcileCollection(snap remote.CollectionSnapshot) {
	defer e.markReady()
	seen := e.unconfirmed.mark()

	if len(snap.Docs) == 0 {
		e.seed()
		return
	}

	records := make([]domain.AgentRecord, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		rec, err := domain.RecordFromFields(doc.ID, doc.Fields)
		if err != nil {
			e.log.Warn().Err(err).Str("id", doc.ID).Msg("skipping malformed agent document")
			continue
		}
		records = append(records, rec)
	}

	var presets, personal int
	changed := e.store.Update(func(st recordstore.State) recordstore.Mutation {
		var m recordstore.OverlayRemote
		for _, rec := range e.unconfirmed.overlay(records, seen) {
			if st.IsPreset(rec.ID) {
				if cur, _, _ := st.Find(rec.ID); cur != rec {
					m.Presets = append(m.Presets, rec)
				}
				continue
			}
			m.Personal = append(m.Personal, rec)
		}
		presets, personal = len(m.Presets), len(m.Personal)
		return m
	})

	if changed {
		e.log.Debug().Int("presetOverlays", presets).Int("personal", personal).Msg("directory updated from remote")
		e.opts.Hooks.Emit(context.Background(), hooks.EventDirectoryChanged, map[string]any{
			"presetOverlays": presets,
			"personal":       personal,
		})
	}

	e.mu.Lock()
	pending := e.pendingPointer
	e.mu.Unlock()
	if pending != "" {
		e.resolvePointer(pending)
	}
}

// seed writes the presets to the empty remote collection. It is attempted
// at most once per engine; concurrent seeding by other clients converges
// because every write is a full overwrite of a fixed id with identical
// content.
func (e *Engine) seed() {
	if !e.seeding.CompareAndSwap(false, true) {
		e.log.Debug().Msg("collection empty again, not reseeding")
		return
	}

	c := e.opts.Collections
	writes := make([]remote.Write, len(e.opts.Presets))
	for i, p := range e.opts.Presets {
		writes[i] = remote.Write{ID: p.ID, Fields: p.Fields()}
	}

	e.log.Info().Int("presets", len(writes)).Msg("remote directory empty, seeding presets")
	err := e.submit(writeOp{
		op:         "seed",
		collection: c.Agents,
		run: func(ctx context.Context) error {
			if err := e.dir.BatchWrite(ctx, c.Agents, writes); err != nil {
				return err
			}
			e.seeded.Store(true)
			e.opts.Hooks.Emit(ctx, hooks.EventSeeded, map[string]any{"count": len(writes)})
			return nil
		},
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("seeding skipped")
	}
}
