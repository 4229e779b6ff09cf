// Package syncer keeps a local record store consistent with a shared remote
// directory: it applies local edits optimistically, writes them through,
// and reconciles remote snapshots back into the store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/debounce"
	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/soyeahso/roster/internal/remote"
)

// PointerField is the field of the pointer document holding the current id.
const PointerField = "currentAgentId"

// DefaultWriteTimeout bounds each remote write.
const DefaultWriteTimeout = 10 * time.Second

var (
	ErrNotStarted     = errors.New("sync engine not started")
	ErrAlreadyStarted = errors.New("sync engine already started")
	ErrDisposed       = errors.New("sync engine disposed")
	ErrUnknownRecord  = errors.New("unknown agent")
	ErrDuplicateID    = errors.New("agent id already exists")
)

// Collections names the remote layout.
type Collections struct {
	Agents     string
	Config     string
	PointerDoc string
}

// DefaultCollections returns the standard layout: agents/<id> and
// config/global.
func DefaultCollections() Collections {
	return Collections{Agents: "agents", Config: "config", PointerDoc: "global"}
}

// PointerState is the state of the pointer relation.
type PointerState int32

const (
	PointerUninitialized PointerState = iota
	PointerSynced
)

func (p PointerState) String() string {
	if p == PointerSynced {
		return "synced"
	}
	return "uninitialized"
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Collections  Collections
	Debounce     time.Duration
	WriteTimeout time.Duration
	Clock        clock.Clock
	// Presets are written to an empty remote collection. Defaults to
	// domain.DefaultPresets().
	Presets []domain.AgentRecord
	Hooks   *hooks.Manager
	// OnWriteError is called after a failed remote write has been logged.
	OnWriteError func(op, collection, id string, err error)
}

// Engine owns the remote subscriptions for one store.
type Engine struct {
	store *recordstore.Store
	dir   remote.Directory
	opts  Options
	log   *logging.Logger

	writer      *debounce.Writer
	writes      *writeQueue
	unconfirmed *unconfirmed

	mu             sync.Mutex
	started        bool
	disposed       bool
	cancel         context.CancelFunc
	unsubscribe    func()
	pendingPointer string

	pointer atomic.Int32
	seeding atomic.Bool
	seeded  atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	dispose   sync.Once
}

// New creates an engine. Nothing happens until Start.
func New(store *recordstore.Store, dir remote.Directory, opts Options, log *logging.Logger) *Engine {
	if opts.Collections == (Collections{}) {
		opts.Collections = DefaultCollections()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if len(opts.Presets) == 0 {
		opts.Presets = domain.DefaultPresets()
	}

	e := &Engine{
		store: store,
		dir:   dir,
		opts:  opts,
		log:   log.Sub("sync"),
		ready: make(chan struct{}),
		done:  make(chan struct{}),

		unconfirmed: newUnconfirmed(),
	}
	e.writer = debounce.New(opts.Debounce, opts.Clock, e.flushPatch, log)
	return e
}

// Store returns the local store the engine keeps in sync.
func (e *Engine) Store() *recordstore.Store { return e.store }

// Start subscribes to the pointer document and the agents collection and
// starts the reconciliation loop. The subscriptions live until Dispose.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	if e.started {
		return ErrAlreadyStarted
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := e.opts.Collections

	pointerCh, err := e.dir.SubscribeDoc(subCtx, c.Config, c.PointerDoc)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s/%s: %w", c.Config, c.PointerDoc, err)
	}
	agentsCh, err := e.dir.SubscribeCollection(subCtx, c.Agents)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s: %w", c.Agents, err)
	}

	e.cancel = cancel
	e.writes = newWriteQueue(e.opts.WriteTimeout, e.log, e.opts.Hooks, e.opts.OnWriteError)
	e.unsubscribe = e.store.Subscribe(e.onStoreChange)
	e.started = true

	go e.loop(subCtx, pointerCh, agentsCh)

	e.log.Info().
		Str("agents", c.Agents).
		Str("pointer", c.Config+"/"+c.PointerDoc).
		Msg("sync engine started")
	return nil
}

// Ready is closed once the first collection snapshot has been reconciled.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// WaitReady blocks until Ready or ctx is done.
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PointerState reports whether a remote pointer has been resolved yet.
func (e *Engine) PointerState() PointerState {
	return PointerState(e.pointer.Load())
}

// Seeded reports whether this engine's seeding batch write succeeded.
func (e *Engine) Seeded() bool { return e.seeded.Load() }

// Dispose cancels both subscriptions, discards pending debounced edits and
// waits for queued remote writes to finish. Safe to call more than once.
func (e *Engine) Dispose() {
	e.dispose.Do(func() {
		e.mu.Lock()
		e.disposed = true
		started := e.started
		cancel := e.cancel
		unsubscribe := e.unsubscribe
		e.mu.Unlock()

		e.writer.Cancel()
		if !started {
			return
		}
		cancel()
		<-e.done
		unsubscribe()
		e.writes.close()
		e.log.Info().Msg("sync engine disposed")
	})
}

// Settle blocks until every remote write issued so far has completed.
func (e *Engine) Settle() {
	e.mu.Lock()
	q := e.writes
	e.mu.Unlock()
	if q != nil {
		q.wait()
	}
}

func (e *Engine) loop(ctx context.Context, pointerCh <-chan remote.DocSnapshot, agentsCh <-chan remote.CollectionSnapshot) {
	defer close(e.done)
	for pointerCh != nil || agentsCh != nil {
		select {
		case snap, ok := <-pointerCh:
			if !ok {
				pointerCh = nil
				e.subscriptionEnded(ctx, "pointer")
				continue
			}
			e.reconcilePointer(snap)
		case snap, ok := <-agentsCh:
			if !ok {
				agentsCh = nil
				e.subscriptionEnded(ctx, "agents")
				continue
			}
			e.reconcileCollection(snap)
		}
	}
}

func (e *Engine) subscriptionEnded(ctx context.Context, name string) {
	if ctx.Err() != nil {
		e.log.Debug().Str("subscription", name).Msg("subscription released")
		return
	}
	e.log.Warn().Str("subscription", name).Msg("subscription closed by directory")
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

func (e *Engine) submit(op writeOp) error {
	e.mu.Lock()
	q, started, disposed := e.writes, e.started, e.disposed
	e.mu.Unlock()
	switch {
	case disposed:
		return ErrDisposed
	case !started:
		return ErrNotStarted
	}
	if !q.submit(op) {
		return ErrDisposed
	}
	return nil
}

func (e *Engine) onStoreChange(next, prev recordstore.State) {
	if next.Current.ID != prev.Current.ID {
		e.log.Info().Str("id", next.Current.ID).Str("name", next.Current.Name).Msg("current agent changed")
		e.opts.Hooks.Emit(context.Background(), hooks.EventCurrentChanged, map[string]any{
			"id":       next.Current.ID,
			"name":     next.Current.Name,
			"previous": prev.Current.ID,
		})
	}
}
