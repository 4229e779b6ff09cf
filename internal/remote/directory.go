// Package remote defines the shared document directory that roster clients
// synchronize against, and an in-process implementation of it.
package remote

import (
	"context"
	"errors"
	"maps"
)

var (
	// ErrNotFound is returned by backends for lookups of unknown documents
	// where absence is an error rather than a result.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by every operation on a closed directory.
	ErrClosed = errors.New("directory closed")
)

// Document is one keyed record in a collection.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Clone returns a copy whose top-level field map is not shared.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Fields: maps.Clone(d.Fields)}
}

// DocSnapshot is the state of a single document at one point in time.
type DocSnapshot struct {
	Doc    Document `json:"doc"`
	Exists bool     `json:"exists"`
}

// CollectionSnapshot is the full contents of a collection at one point in
// time, ordered by document id.
type CollectionSnapshot struct {
	Docs []Document `json:"docs"`
}

// Write is one element of a batch write.
type Write struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
	Merge  bool           `json:"merge,omitempty"`
}

// Directory is a remote, shared, keyed document store with change
// subscriptions.
//
// Subscriptions deliver the current value first and then every later
// change. A subscriber that falls behind only sees the newest snapshot,
// which is lossless because snapshots are complete. The returned channel is
// closed when ctx is cancelled or the directory is closed; cancelling ctx is
// how a subscription is released.
type Directory interface {
	GetDoc(ctx context.Context, collection, id string) (Document, bool, error)
	// SetDoc writes a document. With merge only the given fields are
	// replaced; otherwise the document is overwritten. Both create the
	// document when missing.
	SetDoc(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	SubscribeDoc(ctx context.Context, collection, id string) (<-chan DocSnapshot, error)
	SubscribeCollection(ctx context.Context, collection string) (<-chan CollectionSnapshot, error)
	// BatchWrite applies all writes atomically.
	BatchWrite(ctx context.Context, collection string, writes []Write) error
}

// Backend is the storage underneath a Local directory.
type Backend interface {
	Get(ctx context.Context, collection, id string) (map[string]any, bool, error)
	Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	List(ctx context.Context, collection string) ([]Document, error)
	PutBatch(ctx context.Context, collection string, writes []Write) error
}

// MergeFields applies a write to an existing document body and returns the
// new body. existing is not modified.
func MergeFields(existing, fields map[string]any, merge bool) map[string]any {
	if !merge || existing == nil {
		return maps.Clone(fields)
	}
	out := maps.Clone(existing)
	maps.Copy(out, fields)
	return out
}
