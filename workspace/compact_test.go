package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffdb/skiff/internal/testutil"
	"github.com/skiffdb/skiff/store"
	"github.com/skiffdb/skiff/value"
)

func TestCompactInPlace_PreservesReads(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)

	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("draft"), "views": value.Int(0),
	}))
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("final"), "views": value.Int(1),
	}))
	posts.Delete("p2")

	container := store.TableContainer("posts")
	before := w.Document().CellCount(container)
	require.Equal(t, 3, before)

	require.NoError(t, w.CompactInPlace())

	assert.Equal(t, 2, w.Document().CellCount(container), "one winner per key, tombstone included")
	assert.Equal(t, int64(0), w.Epoch(), "in-place compaction does not advance the epoch")

	res := posts.Get("p1")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.String("final"), res.Row["title"])
	assert.Equal(t, store.StatusNotFound, posts.Get("p2").Status)
}

func TestCompactInPlace_PersistsWhenSinkAttached(t *testing.T) {
	sink := NewMemorySink()
	w, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("x"), "views": value.Int(0),
	}))

	require.NoError(t, w.CompactInPlace())
	assert.Equal(t, 2, sink.Keys(), "epoch blob and head pointer")
}

func TestAdvanceEpoch_SeedsValidState(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)
	theme, err := w.KV(themeDef(t))
	require.NoError(t, err)

	require.NoError(t, posts.Set(value.Object{
		"id": value.String("old"), "title": value.String("legacy"),
	}))
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("bad"), "title": value.Int(7),
	}))
	posts.Delete("gone")
	require.NoError(t, theme.Set(value.Object{"name": value.String("dark")}))

	epoch, err := w.AdvanceEpoch(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), epoch)
	assert.Equal(t, int64(1), w.Epoch())
	assert.Equal(t, int64(1), w.Document().Epoch())

	// Valid rows crossed, already migrated to the latest shape.
	res := posts.Get("old")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.Int(0), res.Row["views"])

	// Invalid rows and tombstones do not cross the boundary.
	assert.Equal(t, store.StatusNotFound, posts.Get("bad").Status)
	container := store.TableContainer("posts")
	assert.Equal(t, 1, w.Document().CellCount(container), "fresh generation holds flat state only")

	// Stored valid KV values cross too.
	themeRes := theme.Get()
	require.Equal(t, store.StatusValid, themeRes.Status)
	assert.True(t, value.Equal(value.Object{"name": value.String("dark")}, themeRes.Value))
	assert.True(t, theme.Has())
}

func TestAdvanceEpoch_DefaultsStayAbsent(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	theme, err := w.KV(themeDef(t))
	require.NoError(t, err)

	_, err = w.AdvanceEpoch(nil)
	require.NoError(t, err)

	assert.False(t, theme.Has(), "an unset entry stays unset in the new epoch")
	res := theme.Get()
	assert.Equal(t, store.StatusValid, res.Status, "reads still fall back to the default")
}

func TestAdvanceEpoch_Transform(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)

	require.NoError(t, posts.Set(value.Object{
		"id": value.String("keep"), "title": value.String("x"), "views": value.Int(9),
	}))
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("drop"), "title": value.String("y"), "views": value.Int(0),
	}))

	_, err = w.AdvanceEpoch(func(table string, row value.Object) (value.Object, error) {
		id, _ := row.ID()
		if id == "drop" {
			return nil, nil
		}
		out := row.Clone()
		out["views"] = value.Int(0) // reset counters in the new era
		return out, nil
	})
	require.NoError(t, err)

	assert.Equal(t, store.StatusNotFound, posts.Get("drop").Status)
	res := posts.Get("keep")
	require.Equal(t, store.StatusValid, res.Status)
	assert.Equal(t, value.Int(0), res.Row["views"])
}

func TestAdvanceEpoch_TransformErrorAborts(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("x"), "views": value.Int(0),
	}))

	_, err = w.AdvanceEpoch(func(string, value.Object) (value.Object, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)

	assert.Equal(t, int64(0), w.Epoch(), "failed advance leaves the current epoch in place")
	assert.Equal(t, store.StatusValid, posts.Get("p1").Status)
}

func TestAdvanceEpoch_PersistsNewGeneration(t *testing.T) {
	sink := NewMemorySink()
	w, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	posts, err := w.Table(postsDef(t))
	require.NoError(t, err)
	require.NoError(t, posts.Set(value.Object{
		"id": value.String("p1"), "title": value.String("x"), "views": value.Int(0),
	}))
	require.NoError(t, w.Persist())

	_, err = w.AdvanceEpoch(nil)
	require.NoError(t, err)

	// Old blob, new blob, head pointer.
	assert.Equal(t, 3, sink.Keys())

	epoch, ok, err := readHead(sink, "ws")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), epoch)

	// A fresh workspace over the same sink opens the new generation.
	reopened, err := New("ws", WithSink(sink), WithActor(testutil.ActorA))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reopened.Epoch())
	postsAgain, err := reopened.Table(postsDef(t))
	require.NoError(t, err)
	assert.Equal(t, store.StatusValid, postsAgain.Get("p1").Status)
}

func TestAdvanceEpoch_ObserverNotified(t *testing.T) {
	w, err := New("ws", WithActor(testutil.ActorA))
	require.NoError(t, err)
	_, err = w.Table(postsDef(t))
	require.NoError(t, err)

	var epochs []int64
	cancel := w.ObserveEpoch(func(e int64) { epochs = append(epochs, e) })

	_, err = w.AdvanceEpoch(nil)
	require.NoError(t, err)
	cancel()
	_, err = w.AdvanceEpoch(nil)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, epochs)
}
