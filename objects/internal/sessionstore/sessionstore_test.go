package sessionstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPutGetDelete(t *testing.T) {
	c := qt.New(t)
	store, err := OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)

	ctx := context.Background()
	_, found, err := store.Get(ctx, "obj")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsFalse)

	rec := Record{URI: "https://example/session/1", FirstChunk: []byte("abc")}
	c.Assert(store.Put(ctx, "obj", rec), qt.IsNil)

	got, found, err := store.Get(ctx, "obj")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
	c.Assert(got, qt.DeepEquals, rec)

	c.Assert(store.Delete(ctx, "obj"), qt.IsNil)
	_, found, err = store.Get(ctx, "obj")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsFalse)
}

func TestRecordSurvivesReopen(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "sessions.json")

	store, err := OpenAt(path)
	c.Assert(err, qt.IsNil)
	c.Assert(store.Put(context.Background(), "obj", Record{URI: "https://example/session/1"}), qt.IsNil)

	reopened, err := OpenAt(path)
	c.Assert(err, qt.IsNil)
	got, found, err := reopened.Get(context.Background(), "obj")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
	c.Assert(got.URI, qt.Equals, "https://example/session/1")
}

func TestDeleteOfMissingKeyIsNotAnError(t *testing.T) {
	c := qt.New(t)
	store, err := OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Delete(context.Background(), "never-existed"), qt.IsNil)
}

func TestConcurrentAccessToSameKeyIsSerialized(t *testing.T) {
	c := qt.New(t)
	store, err := OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Put(context.Background(), "shared", Record{URI: "https://example/session"})
		}(i)
	}
	wg.Wait()

	_, found, err := store.Get(context.Background(), "shared")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
}
