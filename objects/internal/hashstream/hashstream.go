// Package hashstream implements the §4.4 HashingStream: a pass-through
// tee that accumulates running CRC32C and MD5 digests over every byte that
// flows through it without buffering beyond what the consumer pulls.
package hashstream

import (
	"crypto/md5"
	"encoding/base64"
	"hash"
	"hash/crc32"
	"io"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Stream wraps a reader or writer and keeps running CRC32C/MD5 digests of
// every byte that passes through Write (or is produced by Read).
// Digests are finalized lazily: Sum32/SumMD5/Test read the hash state
// directly, which is safe at any point since hash.Hash never needs an
// explicit "finalize" step distinct from Sum.
type Stream struct {
	crc hash.Hash32
	md5 hash.Hash
}

// New creates a HashingStream with both digests enabled.
func New() *Stream {
	return &Stream{
		crc: crc32.New(crc32cTable),
		md5: md5.New(),
	}
}

// Write feeds p into both running digests. It never returns an error and
// always reports len(p) written, satisfying io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	s.crc.Write(p)
	s.md5.Write(p)
	return len(p), nil
}

// TeeReader wraps r so that every byte read through it is also fed into the
// digests, preserving the consumer's backpressure (bytes are hashed exactly
// as they're pulled, never read ahead).
func (s *Stream) TeeReader(r io.Reader) io.Reader {
	return io.TeeReader(r, s)
}

// CRC32CBase64 returns the base64 encoding of the running CRC32C digest.
func (s *Stream) CRC32CBase64() string {
	sum := s.crc.Sum32()
	b := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return base64.StdEncoding.EncodeToString(b)
}

// MD5Base64 returns the base64 encoding of the running MD5 digest.
func (s *Stream) MD5Base64() string {
	return base64.StdEncoding.EncodeToString(s.md5.Sum(nil))
}

// Algorithm identifies which digest Test should compare against.
type Algorithm int

const (
	CRC32C Algorithm = iota
	MD5
)

// Test compares the running digest for algo against expectedBase64 and
// reports whether they match.
func (s *Stream) Test(algo Algorithm, expectedBase64 string) bool {
	switch algo {
	case CRC32C:
		return s.CRC32CBase64() == expectedBase64
	case MD5:
		return s.MD5Base64() == expectedBase64
	default:
		return false
	}
}

// DecodeServerCRC32C decodes the base64 value GCS sends in x-goog-hash for
// crc32c and slices off the real 4-byte checksum. See spec.md §9: the
// server-supplied base64 decodes to an 8-byte value; only the trailing 4
// bytes are the actual CRC32C.
func DecodeServerCRC32C(base64Value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Value)
	if err != nil {
		return "", err
	}
	if len(raw) > 4 {
		raw = raw[len(raw)-4:]
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
