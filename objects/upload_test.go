package objects

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"gcsobject/objects/internal/gcstest"
	"gcsobject/objects/internal/sessionstore"
	"gcsobject/objects/internal/types"
)

func newResumableClient(t testing.TB) (*Client, *gcstest.Server) {
	t.Helper()
	srv := gcstest.New()
	t.Cleanup(srv.Close)
	store, err := sessionstore.OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("OpenAt: %v", err)
	}
	rt := &gcstest.RoundTripper{Server: srv}
	return NewClient(rt, store), srv
}

func falsePtr() *bool {
	b := false
	return &b
}

func TestUploadSimpleRoundTrips(t *testing.T) {
	c := qt.New(t)
	client, _ := newResumableClient(c)

	attrs, err := client.Object("bucket", "foo.txt").UploadBytes(context.Background(), UploadConfig{
		Resumable: falsePtr(),
	}, []byte("hello world"))
	c.Assert(err, qt.IsNil)
	c.Assert(attrs.Name, qt.Equals, "foo.txt")

	got, err := client.Object("bucket", "foo.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "hello world")
}

func TestUploadResumableHappyPath(t *testing.T) {
	c := qt.New(t)
	client, _ := newResumableClient(c)

	payload := bytes.Repeat([]byte("x"), 100*1024)
	attrs, err := client.Object("bucket", "big.bin").UploadBytes(context.Background(), UploadConfig{}, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(attrs.Size, qt.Equals, "102400")

	got, err := client.Object("bucket", "big.bin").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(got, payload), qt.IsTrue)
}

func TestUploadResumableResumesFromExistingSession(t *testing.T) {
	c := qt.New(t)
	client, srv := newResumableClient(c)

	payload := bytes.Repeat([]byte("y"), 32768)
	already := payload[:16384]
	uri := srv.SeedSession("bucket", "resume.bin", already)

	store, err := sessionstore.OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Put(context.Background(), "resume.bin", sessionstore.Record{
		URI:        uri,
		FirstChunk: payload[:16],
	}), qt.IsNil)
	client2 := NewClient(client.rt, store)

	attrs, err := client2.Object("bucket", "resume.bin").UploadBytes(context.Background(), UploadConfig{}, payload)
	c.Assert(err, qt.IsNil)

	got, err := client2.Object("bucket", "resume.bin").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(got, payload), qt.IsTrue)
	c.Assert(attrs.Size, qt.Equals, "32768")

	// the session record is cleared once the upload completes
	_, found, err := store.Get(context.Background(), "resume.bin")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsFalse)
}

func TestUploadResumableDivergedContentRestartsSession(t *testing.T) {
	c := qt.New(t)
	client, srv := newResumableClient(c)

	uri := srv.SeedSession("bucket", "diverge.bin", nil)

	store, err := sessionstore.OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Put(context.Background(), "diverge.bin", sessionstore.Record{
		URI:        uri,
		FirstChunk: []byte("this is not the real prefix!!"),
	}), qt.IsNil)
	client2 := NewClient(client.rt, store)

	attrs, err := client2.Object("bucket", "diverge.bin").UploadBytes(context.Background(), UploadConfig{}, []byte("actual content"))
	c.Assert(err, qt.IsNil)
	c.Assert(attrs.Name, qt.Equals, "diverge.bin")

	got, err := client2.Object("bucket", "diverge.bin").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "actual content")
}

// TestUploadResumableProbe404RestartsSession exercises spec.md §4.3's
// session-vanished policy: a 404 on Probe discards the existing session and
// restarts from SessionStart, rather than looping Probe against a session
// the server no longer recognizes.
func TestUploadResumableProbe404RestartsSession(t *testing.T) {
	c := qt.New(t)
	client, srv := newResumableClient(c)

	payload := bytes.Repeat([]byte("z"), 4096)
	uri := srv.SeedSession("bucket", "restart.bin", nil)

	store, err := sessionstore.OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Put(context.Background(), "restart.bin", sessionstore.Record{
		URI:        uri,
		FirstChunk: payload[:16],
	}), qt.IsNil)
	client2 := NewClient(client.rt, store)

	srv.FailResumablePut = func(attempt int) (int, bool) {
		if attempt == 1 {
			return http.StatusNotFound, true
		}
		return 0, false
	}

	attrs, err := client2.Object("bucket", "restart.bin").UploadBytes(context.Background(), UploadConfig{}, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(attrs.Size, qt.Equals, "4096")

	got, err := client2.Object("bucket", "restart.bin").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(got, payload), qt.IsTrue)
}

// TestUploadResumableProbe5xxBacksOffThenSucceeds exercises spec.md §4.3's
// backoff-and-reprobe policy: a 5xx on Probe sleeps and retries Probe on the
// same session rather than failing outright or restarting the session.
func TestUploadResumableProbe5xxBacksOffThenSucceeds(t *testing.T) {
	c := qt.New(t)
	client, srv := newResumableClient(c)

	payload := bytes.Repeat([]byte("w"), 2048)
	already := payload[:512]
	uri := srv.SeedSession("bucket", "backoff.bin", already)

	store, err := sessionstore.OpenAt(filepath.Join(t.TempDir(), "sessions.json"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Put(context.Background(), "backoff.bin", sessionstore.Record{
		URI:        uri,
		FirstChunk: payload[:16],
	}), qt.IsNil)
	client2 := NewClient(client.rt, store)

	srv.FailResumablePut = func(attempt int) (int, bool) {
		if attempt == 1 {
			return http.StatusInternalServerError, true
		}
		return 0, false
	}

	attrs, err := client2.Object("bucket", "backoff.bin").UploadBytes(context.Background(), UploadConfig{}, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(attrs.Size, qt.Equals, "2048")

	got, err := client2.Object("bucket", "backoff.bin").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(got, payload), qt.IsTrue)
}

func TestUploadWithValidationNoneSkipsIntegrityCheck(t *testing.T) {
	c := qt.New(t)
	client, _ := newResumableClient(c)

	_, err := client.Object("bucket", "quiet.bin").UploadBytes(context.Background(), UploadConfig{
		Validation: types.ValidateNone,
		Resumable:  falsePtr(),
	}, []byte("anything"))
	c.Assert(err, qt.IsNil)
}
