package materialize

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffdb/skiff/crdt"
	"github.com/skiffdb/skiff/internal/testutil"
	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/store"
)

func postsDef(t *testing.T) *schema.TableDefinition {
	t.Helper()
	return schema.NewTable("posts").
		Version(schema.NewObject(
			schema.Field{Name: "id", Kind: schema.KindString},
			schema.Field{Name: "title", Kind: schema.KindString},
		)).
		MustBuild()
}

func openMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMirrorTable_InitialSync(t *testing.T) {
	doc := crdt.NewDocument(crdt.WithActor(testutil.ActorA))
	posts := store.BindTable(store.FixedDocument(doc), postsDef(t))
	require.NoError(t, posts.Set(testutil.Row("id", "p1", "title", "one")))
	require.NoError(t, posts.Set(testutil.Row("id", "p2", "title", "two")))
	require.NoError(t, posts.Set(testutil.Row("id", "bad", "title", 7)))

	m := openMirror(t)
	require.NoError(t, m.MirrorTable(posts))

	rows, err := m.Rows("posts")
	require.NoError(t, err)
	require.Len(t, rows, 2, "invalid rows are excluded")
	assert.Equal(t, `{"id":"p1","title":"one"}`, rows["p1"])
	assert.Equal(t, `{"id":"p2","title":"two"}`, rows["p2"])
}

func TestMirrorTable_IncrementalUpdates(t *testing.T) {
	doc := crdt.NewDocument(crdt.WithActor(testutil.ActorA))
	posts := store.BindTable(store.FixedDocument(doc), postsDef(t))

	m := openMirror(t)
	require.NoError(t, m.MirrorTable(posts))

	require.NoError(t, posts.Set(testutil.Row("id", "p1", "title", "first")))
	rows, err := m.Rows("posts")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"p1","title":"first"}`, rows["p1"])

	// Upsert on change.
	require.NoError(t, posts.Set(testutil.Row("id", "p1", "title", "edited")))
	rows, err = m.Rows("posts")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"p1","title":"edited"}`, rows["p1"])

	// A row turning invalid disappears.
	require.NoError(t, posts.Set(testutil.Row("id", "p1", "title", 7)))
	rows, err = m.Rows("posts")
	require.NoError(t, err)
	assert.NotContains(t, rows, "p1")

	// Deletions disappear too.
	require.NoError(t, posts.Set(testutil.Row("id", "p2", "title", "gone soon")))
	posts.Delete("p2")
	rows, err = m.Rows("posts")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMirrorTable_StopsAfterClose(t *testing.T) {
	doc := crdt.NewDocument(crdt.WithActor(testutil.ActorA))
	posts := store.BindTable(store.FixedDocument(doc), postsDef(t))

	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	require.NoError(t, m.MirrorTable(posts))
	require.NoError(t, m.Close())

	// The observer is unsubscribed; writing after Close must not panic.
	require.NoError(t, posts.Set(testutil.Row("id", "p1", "title", "late")))
}

func TestMirrorTable_RejectsUnsafeName(t *testing.T) {
	def := schema.NewTable(`posts"; DROP TABLE x; --`).
		Version(schema.NewObject(schema.Field{Name: "id", Kind: schema.KindString})).
		MustBuild()
	doc := crdt.NewDocument(crdt.WithActor(testutil.ActorA))
	tbl := store.BindTable(store.FixedDocument(doc), def)

	m := openMirror(t)
	require.Error(t, m.MirrorTable(tbl))
}

func TestRows_RejectsUnsafeName(t *testing.T) {
	m := openMirror(t)
	_, err := m.Rows("no such table!")
	require.Error(t, err)
}
