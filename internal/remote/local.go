package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/soyeahso/roster/internal/logging"
)

type docKey struct {
	collection string
	id         string
}

// Local is a Directory over a Backend with in-process change fan-out.
// Writes and their snapshot publication are serialized, so every
// subscriber observes changes in commit order.
type Local struct {
	backend Backend
	log     *logging.Logger

	wmu sync.Mutex

	mu       sync.Mutex
	docSubs  map[docKey]map[string]*Feed[DocSnapshot]
	collSubs map[string]map[string]*Feed[CollectionSnapshot]
	closed   bool
	done     chan struct{}
}

// NewLocal creates a directory over backend.
func NewLocal(backend Backend, log *logging.Logger) *Local {
	return &Local{
		backend:  backend,
		log:      log.Sub("remote"),
		docSubs:  make(map[docKey]map[string]*Feed[DocSnapshot]),
		collSubs: make(map[string]map[string]*Feed[CollectionSnapshot]),
		done:     make(chan struct{}),
	}
}

// NewMemory creates a Local directory over a fresh MemoryBackend.
func NewMemory(log *logging.Logger) (*Local, *MemoryBackend) {
	b := NewMemoryBackend()
	return NewLocal(b, log), b
}

func (l *Local) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Local) GetDoc(ctx context.Context, collection, id string) (Document, bool, error) {
	if l.isClosed() {
		return Document{}, false, ErrClosed
	}
	fields, ok, err := l.backend.Get(ctx, collection, id)
	if err != nil {
		return Document{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Fields: fields}, ok, nil
}

func (l *Local) SetDoc(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if id == "" {
		return fmt.Errorf("set %s: empty document id", collection)
	}
	if l.isClosed() {
		return ErrClosed
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()
	if err := l.backend.Put(ctx, collection, id, fields, merge); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	l.log.Debug().Str("collection", collection).Str("id", id).Bool("merge", merge).Msg("document written")
	l.publish(context.WithoutCancel(ctx), collection, id)
	return nil
}

func (l *Local) BatchWrite(ctx context.Context, collection string, writes []Write) error {
	if l.isClosed() {
		return ErrClosed
	}
	if len(writes) == 0 {
		return nil
	}
	ids := make([]string, len(writes))
	for i, w := range writes {
		if w.ID == "" {
			return fmt.Errorf("batch %s: write %d has empty document id", collection, i)
		}
		ids[i] = w.ID
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()
	if err := l.backend.PutBatch(ctx, collection, writes); err != nil {
		return fmt.Errorf("batch %s: %w", collection, err)
	}
	l.log.Debug().Str("collection", collection).Int("writes", len(writes)).Msg("batch written")
	l.publish(context.WithoutCancel(ctx), collection, ids...)
	return nil
}

// publish sends fresh snapshots to subscribers of the written documents and
// of their collection. Callers hold wmu.
func (l *Local) publish(ctx context.Context, collection string, ids ...string) {
	l.mu.Lock()
	docTargets := make(map[string][]*Feed[DocSnapshot])
	for _, id := range ids {
		for _, f := range l.docSubs[docKey{collection, id}] {
			docTargets[id] = append(docTargets[id], f)
		}
	}
	collTargets := make([]*Feed[CollectionSnapshot], 0, len(l.collSubs[collection]))
	for _, f := range l.collSubs[collection] {
		collTargets = append(collTargets, f)
	}
	l.mu.Unlock()

	for id, feeds := range docTargets {
		snap, err := l.docSnapshot(ctx, collection, id)
		if err != nil {
			l.log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("document snapshot failed")
			continue
		}
		for _, f := range feeds {
			f.Offer(snap)
		}
	}

	if len(collTargets) == 0 {
		return
	}
	snap, err := l.collectionSnapshot(ctx, collection)
	if err != nil {
		l.log.Warn().Err(err).Str("collection", collection).Msg("collection snapshot failed")
		return
	}
	for _, f := range collTargets {
		f.Offer(snap)
	}
}

func (l *Local) docSnapshot(ctx context.Context, collection, id string) (DocSnapshot, error) {
	fields, ok, err := l.backend.Get(ctx, collection, id)
	if err != nil {
		return DocSnapshot{}, err
	}
	return DocSnapshot{Doc: Document{ID: id, Fields: fields}, Exists: ok}, nil
}

func (l *Local) collectionSnapshot(ctx context.Context, collection string) (CollectionSnapshot, error) {
	docs, err := l.backend.List(ctx, collection)
	if err != nil {
		return CollectionSnapshot{}, err
	}
	return CollectionSnapshot{Docs: docs}, nil
}

func (l *Local) SubscribeDoc(ctx context.Context, collection, id string) (<-chan DocSnapshot, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	snap, err := l.docSnapshot(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s/%s: %w", collection, id, err)
	}

	f := NewFeed[DocSnapshot]()
	subID := uuid.NewString()
	key := docKey{collection, id}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.docSubs[key] == nil {
		l.docSubs[key] = make(map[string]*Feed[DocSnapshot])
	}
	l.docSubs[key][subID] = f
	l.mu.Unlock()

	f.Offer(snap)
	l.log.Debug().Str("collection", collection).Str("id", id).Str("sub", subID).Msg("document subscription added")

	go func() {
		select {
		case <-ctx.Done():
		case <-l.done:
		}
		l.mu.Lock()
		delete(l.docSubs[key], subID)
		if len(l.docSubs[key]) == 0 {
			delete(l.docSubs, key)
		}
		l.mu.Unlock()
		f.Close()
	}()
	return f.C(), nil
}

func (l *Local) SubscribeCollection(ctx context.Context, collection string) (<-chan CollectionSnapshot, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	snap, err := l.collectionSnapshot(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	f := NewFeed[CollectionSnapshot]()
	subID := uuid.NewString()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.collSubs[collection] == nil {
		l.collSubs[collection] = make(map[string]*Feed[CollectionSnapshot])
	}
	l.collSubs[collection][subID] = f
	l.mu.Unlock()

	f.Offer(snap)
	l.log.Debug().Str("collection", collection).Str("sub", subID).Msg("collection subscription added")

	go func() {
		select {
		case <-ctx.Done():
		case <-l.done:
		}
		l.mu.Lock()
		delete(l.collSubs[collection], subID)
		if len(l.collSubs[collection]) == 0 {
			delete(l.collSubs, collection)
		}
		l.mu.Unlock()
		f.Close()
	}()
	return f.C(), nil
}

// Subscribers returns the number of live subscriptions.
func (l *Local) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, subs := range l.docSubs {
		n += len(subs)
	}
	for _, subs := range l.collSubs {
		n += len(subs)
	}
	return n
}

// Close ends every subscription. Later calls fail with ErrClosed.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}
