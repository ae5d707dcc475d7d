package objects

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"gcsobject/objects/internal/types"
)

func TestCopyCreatesDestinationWithSameContent(t *testing.T) {
	c := qt.New(t)
	client, srv := newTestClient(c)
	srv.PutObject("bucket", "src.txt", []byte("copy me"))

	dst, err := client.Object("bucket", "src.txt").Copy(context.Background(), BareName("dst.txt"))
	c.Assert(err, qt.IsNil)
	c.Assert(dst.Bucket(), qt.Equals, "bucket")
	c.Assert(dst.Name(), qt.Equals, "dst.txt")
	c.Assert(dst.Metadata(), qt.IsNotNil)

	got, err := client.Object("bucket", "dst.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "copy me")

	still, err := client.Object("bucket", "src.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(still), qt.Equals, "copy me")
}

func TestCopyToOtherBucket(t *testing.T) {
	c := qt.New(t)
	client, srv := newTestClient(c)
	srv.PutObject("src-bucket", "obj.txt", []byte("payload"))

	dst, err := client.Object("src-bucket", "obj.txt").Copy(context.Background(), BucketRef("dst-bucket"))
	c.Assert(err, qt.IsNil)
	c.Assert(dst.Bucket(), qt.Equals, "dst-bucket")
	c.Assert(dst.Name(), qt.Equals, "obj.txt")

	got, err := client.Object("dst-bucket", "obj.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "payload")
}

func TestCopyToArbitraryObjectRef(t *testing.T) {
	c := qt.New(t)
	client, srv := newTestClient(c)
	srv.PutObject("bucket", "a.txt", []byte("x"))

	dst, err := client.Object("bucket", "a.txt").Copy(context.Background(), ObjectRef{Bucket: "other", Name: "b.txt"})
	c.Assert(err, qt.IsNil)
	c.Assert(dst.Bucket(), qt.Equals, "other")
	c.Assert(dst.Name(), qt.Equals, "b.txt")
}

func TestCopyNilDestinationIsRejected(t *testing.T) {
	c := qt.New(t)
	client, srv := newTestClient(c)
	srv.PutObject("bucket", "a.txt", []byte("x"))

	_, err := client.Object("bucket", "a.txt").Copy(context.Background(), nil)
	c.Assert(errors.Is(err, types.ErrInvalidArgument), qt.IsTrue)
}

func TestCopyMissingSourceFails(t *testing.T) {
	c := qt.New(t)
	client, _ := newTestClient(c)

	_, err := client.Object("bucket", "nope.txt").Copy(context.Background(), BareName("dst.txt"))
	c.Assert(err, qt.IsNotNil)
}

func TestMoveHappyPathDeletesSource(t *testing.T) {
	c := qt.New(t)
	client, srv := newTestClient(c)
	srv.PutObject("bucket", "src.txt", []byte("move me"))

	dst, err := client.Object("bucket", "src.txt").Move(context.Background(), BareName("dst.txt"))
	c.Assert(err, qt.IsNil)
	c.Assert(dst.Name(), qt.Equals, "dst.txt")

	got, err := client.Object("bucket", "dst.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "move me")

	_, err = client.Object("bucket", "src.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNotNil)
}

// TestMoveReportsDeleteErrorAfterSuccessfulCopy exercises spec.md §7's
// composed error contract: when the copy half of Move succeeds but the
// subsequent delete of the source fails, Move still returns the
// already-created destination handle alongside the delete's error.
func TestMoveReportsDeleteErrorAfterSuccessfulCopy(t *testing.T) {
	c := qt.New(t)
	client, srv := newTestClient(c)
	srv.PutObject("bucket", "src.txt", []byte("move me"))
	srv.FailDelete = func(bucket, name string) bool {
		return bucket == "bucket" && name == "src.txt"
	}

	dst, err := client.Object("bucket", "src.txt").Move(context.Background(), BareName("dst.txt"))
	c.Assert(err, qt.IsNotNil)
	c.Assert(dst, qt.IsNotNil)
	c.Assert(dst.Bucket(), qt.Equals, "bucket")
	c.Assert(dst.Name(), qt.Equals, "dst.txt")

	got, err := client.Object("bucket", "dst.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "move me")

	still, err := client.Object("bucket", "src.txt").Download(context.Background(), DownloadConfig{})
	c.Assert(err, qt.IsNil)
	c.Assert(string(still), qt.Equals, "move me")
}
