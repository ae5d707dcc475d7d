package hashstream

import (
	"bytes"
	"io"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTeeReaderMatchesKnownDigests(t *testing.T) {
	c := qt.New(t)

	s := New()
	r := s.TeeReader(bytes.NewReader([]byte("hello")))
	got, err := io.ReadAll(r)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte("hello"))

	// Known digests for "hello": crc32c=9a71bb4c, md5=XUFAKrxLKna5cZ2REBfFkg==
	c.Assert(s.Test(CRC32C, "mnG7TA=="), qt.IsTrue)
	c.Assert(s.Test(MD5, "XUFAKrxLKna5cZ2REBfFkg=="), qt.IsTrue)
	c.Assert(s.Test(MD5, "not-the-right-digest"), qt.IsFalse)
}

func TestDecodeServerCRC32CKeepsTrailingFourBytes(t *testing.T) {
	c := qt.New(t)

	// The 8-byte server form is the 4-byte checksum left-padded with zeros.
	got, err := DecodeServerCRC32C("AAAAAJpxu0w=")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "mnG7TA==")
}
