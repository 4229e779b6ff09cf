package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/roster/internal/remote"
)

// Documents is a remote.Backend over the documents table. Bodies are stored
// as JSON objects.
type Documents struct {
	db *DB
}

// NewDocuments creates a document backend using the given database.
func NewDocuments(db *DB) *Documents {
	return &Documents{db: db}
}

var _ remote.Backend = (*Documents)(nil)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBody(ctx context.Context, q querier, collection, id string) (map[string]any, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	return fields, true, nil
}

// Get returns the body of a document.
func (d *Documents) Get(ctx context.Context, collection, id string) (map[string]any, bool, error) {
	return getBody(ctx, d.db.sql, collection, id)
}

// Put writes one document in its own transaction.
func (d *Documents) Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	return d.PutBatch(ctx, collection, []remote.Write{{ID: id, Fields: fields, Merge: merge}})
}

// PutBatch writes every document in a single transaction.
func (d *Documents) PutBatch(ctx context.Context, collection string, writes []remote.Write) error {
	tx, err := d.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		var existing map[string]any
		if w.Merge {
			existing, _, err = getBody(ctx, tx, collection, w.ID)
			if err != nil {
				return err
			}
		}
		body, err := json.Marshal(remote.MergeFields(existing, w.Fields, w.Merge))
		if err != nil {
			return fmt.Errorf("encoding %s/%s: %w", collection, w.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, body)
			 VALUES (?, ?, ?)
			 ON CONFLICT(collection, id) DO UPDATE SET
			   body = excluded.body,
			   updated_at = datetime('now')`,
			collection, w.ID, string(body),
		); err != nil {
			return fmt.Errorf("writing %s/%s: %w", collection, w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	d.db.log.Debug().Str("collection", collection).Int("writes", len(writes)).Msg("documents written")
	return nil
}

// List returns every document of a collection ordered by id.
func (d *Documents) List(ctx context.Context, collection string) ([]remote.Document, error) {
	rows, err := d.db.sql.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY id`, collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []remote.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
		}
		docs = append(docs, remote.Document{ID: id, Fields: fields})
	}
	return docs, rows.Err()
}

// Count returns the number of documents in a collection.
func (d *Documents) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := d.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection,
	).Scan(&n)
	return n, err
}
