package gcsproto

import (
	"fmt"
	"strconv"
	"strings"
)

// ProbeContentRange is the Content-Range value sent with a zero-length PUT
// to query how much of a resumable session the server has accepted.
const ProbeContentRange = "bytes */*"

// TransmitContentRange builds the Content-Range header for a resumable PUT
// that starts at offset with unknown final length.
func TransmitContentRange(offset int64) string {
	return fmt.Sprintf("bytes %d-*/*", offset)
}

// FinalContentRange builds the Content-Range header for the last chunk of a
// resumable upload of known total size.
func FinalContentRange(offset, total int64) string {
	if total == 0 {
		return fmt.Sprintf("bytes */%d", total)
	}
	return fmt.Sprintf("bytes %d-%d/%d", offset, total-1, total)
}

// ParseResumeRange parses the "Range: bytes=0-<N>" response header a 308
// Resume Incomplete response carries, returning N. ok is false if the
// header is absent or malformed, per spec.md §4.3 step 3 / §8 boundary
// behavior (a 308 without Range resets the offset to -1).
func ParseResumeRange(header string) (n int64, ok bool) {
	rest := strings.TrimPrefix(header, "bytes=")
	if rest == "" {
		return 0, false
	}
	_, hi, found := strings.Cut(rest, "-")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ByteRange is a normal or tail download range request (spec.md §3, §8).
type ByteRange struct {
	Start *int64
	End   *int64
}

// Header renders the HTTP Range header value for a download request.
// A negative End with a nil Start is a tail request for the last |End| bytes.
func (r ByteRange) Header() string {
	switch {
	case r.Start == nil && r.End != nil && *r.End < 0:
		return fmt.Sprintf("bytes=%d", *r.End)
	case r.Start != nil && r.End != nil:
		return fmt.Sprintf("bytes=%d-%d", *r.Start, *r.End)
	case r.Start != nil:
		return fmt.Sprintf("bytes=%d-", *r.Start)
	case r.End != nil:
		return fmt.Sprintf("bytes=-%d", *r.End)
	default:
		return ""
	}
}

// IsRange reports whether either bound is set, making this a range request.
func (r ByteRange) IsRange() bool {
	return r.Start != nil || r.End != nil
}
