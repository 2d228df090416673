package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffdb/skiff/internal/testutil"
	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/store"
	"github.com/skiffdb/skiff/value"
)

func postsDef(t *testing.T) *schema.TableDefinition {
	t.Helper()
	return schema.NewTable("posts").
		Version(schema.NewObject(
			schema.Field{Name: "id", Kind: schema.KindString},
			schema.Field{Name: "title", Kind: schema.KindString},
		)).
		Version(schema.NewObject(
			schema.Field{Name: "id", Kind: schema.KindString},
			schema.Field{Name: "title", Kind: schema.KindString},
			schema.Field{Name: "views", Kind: schema.KindInt},
		)).
		Migrate(func(raw value.Object) (value.Object, error) {
			row := raw.Clone()
			if _, ok := row["views"]; !ok {
				row["views"] = value.Int(0)
			}
			return row, nil
		}).
		MustBuild()
}

func themeDef(t *testing.T) *schema.KVDefinition {
	t.Helper()
	return schema.NewKV("theme").
		Version(schema.NewObject(schema.Field{Name: "name", Kind: schema.KindString})).
		Default(value.Object{"name": value.String("light")}).
		MustBuild()
}

func TestNew_RequiresID(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestWorkspace_BindIdempotent(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)

	def := postsDef(t)
	t1, err := w.Table(def)
	require.NoError(t, err)
	t2, err := w.Table(def)
	require.NoError(t, err)
	assert.Same(t, t1, t2)

	// Same name, different definition: a structural mistake.
	_, err = w.Table(postsDef(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different definition")
}

func TestWorkspace_KVBindIdempotent(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)

	def := themeDef(t)
	k1, err := w.KV(def)
	require.NoError(t, err)
	k2, err := w.KV(def)
	require.NoError(t, err)
	assert.Same(t, k1, k2)

	_, err = w.KV(themeDef(t))
	require.Error(t, err)
}

func TestWorkspace_ExportApplyRemote(t *testing.T) {
	a, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	b, err := New("ws", WithActor(testutil.ActorB))
	require.NoError(t, err)

	postsA, err := a.Table(postsDef(t))
	require.NoError(t, err)
	postsB, err := b.Table(postsDef(t))
	require.NoError(t, err)

	require.NoError(t, postsA.Set(value.Object{
		"id": value.String("p1"), "title": value.String("hi"), "views": value.Int(0),
	}))

	data, err := a.Export()
	require.NoError(t, err)

	changed, err := b.ApplyRemote(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, changed[store.TableContainer("posts")])

	res := postsB.Get("p1")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.String("hi"), res.Row["title"])
}

func TestWorkspace_ApplyRemoteRejectsCorrupt(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	_, err = w.ApplyRemote([]byte("junk"))
	require.Error(t, err)
}

func TestWorkspace_ApplyRemoteRejectsStaleEpoch(t *testing.T) {
	old, err := New("ws", WithActor(testutil.ActorB))
	require.NoError(t, err)
	stale, err := old.Export()
	require.NoError(t, err)

	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	_, err = w.Table(postsDef(t))
	require.NoError(t, err)
	_, err = w.AdvanceEpoch(nil)
	require.NoError(t, err)

	_, err = w.ApplyRemote(stale)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")
}

func TestWorkspace_ApplyRemoteAdoptsNewerEpoch(t *testing.T) {
	remote, err := New("ws", WithActor(testutil.ActorB))
	require.NoError(t, err)
	postsRemote, err := remote.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, postsRemote.Set(value.Object{
		"id": value.String("p1"), "title": value.String("new era"), "views": value.Int(0),
	}))
	_, err = remote.AdvanceEpoch(nil)
	require.NoError(t, err)
	data, err := remote.Export()
	require.NoError(t, err)

	local, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	postsLocal, err := local.Table(postsDef(t))
	require.NoError(t, err)

	var observed int64
	cancel := local.ObserveEpoch(func(e int64) { observed = e })
	defer cancel()

	changed, err := local.ApplyRemote(data)
	require.NoError(t, err)
	assert.Nil(t, changed, "adoption replaces the document, no per-id diff")
	assert.Equal(t, int64(1), local.Epoch())
	assert.Equal(t, int64(1), observed)

	// The accessor follows the workspace to the new generation.
	res := postsLocal.Get("p1")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.String("new era"), res.Row["title"])
}

func TestWorkspace_AdoptedEpochPersisted(t *testing.T) {
	remote, err := New("ws", WithActor(testutil.ActorB))
	require.NoError(t, err)
	postsRemote, err := remote.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, postsRemote.Set(value.Object{
		"id": value.String("p1"), "title": value.String("adopted"), "views": value.Int(0),
	}))
	_, err = remote.AdvanceEpoch(nil)
	require.NoError(t, err)
	data, err := remote.Export()
	require.NoError(t, err)

	sink := NewMemorySink()
	local, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	_, err = local.Table(postsDef(t))
	require.NoError(t, err)

	_, err = local.ApplyRemote(data)
	require.NoError(t, err)

	// Adoption replaces the document, not the peer's identity.
	assert.Equal(t, testutil.ActorA, local.Document().Actor())

	// The adopted blob reached the sink alongside the head pointer, so a
	// restart opens the new generation with its state intact.
	reopened, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reopened.Epoch())
	postsAgain, err := reopened.Table(postsDef(t))
	require.NoError(t, err)
	res := postsAgain.Get("p1")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.String("adopted"), res.Row["title"])
}

func TestWorkspace_PersistAndReload(t *testing.T) {
	sink := NewMemorySink()

	w, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("kept"), "views": value.Int(2),
	}))
	require.NoError(t, w.Persist())

	reloaded, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	postsAgain, err := reloaded.Table(postsDef(t))
	require.NoError(t, err)

	res := postsAgain.Get("p1")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.String("kept"), res.Row["title"])
	assert.Equal(t, int64(0), reloaded.Epoch())
}

func TestWorkspace_PersistWithoutSinkErrors(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	require.Error(t, w.Persist())
}

func TestWorkspace_HeadWithoutBlobStartsEmpty(t *testing.T) {
	sink := NewMemorySink()
	head, err := encodeHead("ws", 4)
	require.NoError(t, err)
	require.NoError(t, sink.Put(headKey("ws"), head))

	w, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	assert.Equal(t, int64(4), w.Epoch(), "the pointer is honored even when the blob is gone")
	assert.Empty(t, w.Document().ContainerNames())
}

func TestWorkspace_RejectsForeignHead(t *testing.T) {
	sink := NewMemorySink()
	head, err := encodeHead("other", 1)
	require.NoError(t, err)
	require.NoError(t, sink.Put(headKey("ws"), head))

	_, err = New("ws", WithSink(sink))
	require.Error(t, err)
}

func TestWriteHead_MonotonicMax(t *testing.T) {
	sink := NewMemorySink()

	final, err := writeHead(sink, "ws", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final)

	// A lower write never regresses the stored pointer.
	final, err = writeHead(sink, "ws", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final)

	epoch, ok, err := readHead(sink, "ws")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), epoch)
}

func TestFileSink_PutGet(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	_, ok, err := sink.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sink.Put("blob", []byte("v1")))
	require.NoError(t, sink.Put("blob", []byte("v2")))

	data, ok, err := sink.Get("blob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), data)
}

func TestWorkspace_FileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	w, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("disk"), "views": value.Int(0),
	}))
	require.NoError(t, w.Persist())

	again, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	postsAgain, err := again.Table(postsDef(t))
	require.NoError(t, err)
	assert.Equal(t, store.StatusValid, postsAgain.Get("p1").Status)
}
