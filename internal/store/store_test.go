package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roster/internal/logging"
	"github.com/soyeahso/roster/internal/remote"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenInMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestOpenFileReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "roster.db")

	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, NewDocuments(db).Put(ctx, "agents", "a", map[string]any{"name": "A"}, false))
	require.NoError(t, db.Close())
	assert.FileExists(t, path)

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var applied int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, len(migrations), applied, "reopening applies nothing twice")

	_, ok, err := NewDocuments(db).Get(ctx, "agents", "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate(context.Background()))

	var applied int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=busy_timeout%285000%29", dsn(":memory:"))
	assert.Contains(t, dsn("/tmp/roster.db"), "journal_mode%28wal%29")
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	var name string
	err := db.sql.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='documents'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "documents", name)
}

// --- Documents tests ---

func TestDocuments_GetMissing(t *testing.T) {
	docs := NewDocuments(testDB(t))

	fields, ok, err := docs.Get(context.Background(), "agents", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fields)
}

func TestDocuments_PutGet(t *testing.T) {
	docs := NewDocuments(testDB(t))
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "agents", "paul", map[string]any{"name": "Paul", "voice": "Fenrir"}, false))

	fields, ok, err := docs.Get(ctx, "agents", "paul")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "Paul", "voice": "Fenrir"}, fields)
}

func TestDocuments_PutMerge(t *testing.T) {
	docs := NewDocuments(testDB(t))
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "agents", "paul", map[string]any{"name": "Paul", "voice": "Fenrir"}, false))
	require.NoError(t, docs.Put(ctx, "agents", "paul", map[string]any{"name": "Pablo"}, true))

	fields, _, err := docs.Get(ctx, "agents", "paul")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Pablo", "voice": "Fenrir"}, fields)

	// merge into a missing document creates it
	require.NoError(t, docs.Put(ctx, "config", "global", map[string]any{"currentAgentId": "paul"}, true))
	fields, ok, err := docs.Get(ctx, "config", "global")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "paul", fields["currentAgentId"])
}

func TestDocuments_PutReplace(t *testing.T) {
	docs := NewDocuments(testDB(t))
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "agents", "paul", map[string]any{"name": "Paul", "voice": "Fenrir"}, false))
	require.NoError(t, docs.Put(ctx, "agents", "paul", map[string]any{"name": "Pablo"}, false))

	fields, _, err := docs.Get(ctx, "agents", "paul")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Pablo"}, fields)
}

func TestDocuments_ListOrdered(t *testing.T) {
	docs := NewDocuments(testDB(t))
	ctx := context.Background()

	require.NoError(t, docs.PutBatch(ctx, "agents", []remote.Write{
		{ID: "shane", Fields: map[string]any{"name": "Shane"}},
		{ID: "charlotte", Fields: map[string]any{"name": "Charlotte"}},
		{ID: "paul", Fields: map[string]any{"name": "Paul"}},
	}))
	require.NoError(t, docs.Put(ctx, "config", "global", map[string]any{"currentAgentId": "paul"}, true))

	list, err := docs.List(ctx, "agents")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "charlotte", list[0].ID)
	assert.Equal(t, "paul", list[1].ID)
	assert.Equal(t, "shane", list[2].ID)

	n, err := docs.Count(ctx, "agents")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDocuments_ListEmpty(t *testing.T) {
	docs := NewDocuments(testDB(t))

	list, err := docs.List(context.Background(), "agents")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDocuments_BackingLocalDirectory(t *testing.T) {
	log := logging.New(nil, "silent")
	dir := remote.NewLocal(NewDocuments(testDB(t)), log)
	defer dir.Close()
	ctx := context.Background()

	require.NoError(t, dir.SetDoc(ctx, "agents", "paul", map[string]any{"name": "Paul"}, false))
	doc, ok, err := dir.GetDoc(ctx, "agents", "paul")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Paul", doc.Fields["name"])
}
