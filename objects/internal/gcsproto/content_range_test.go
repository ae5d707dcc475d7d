package gcsproto

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParseResumeRange(t *testing.T) {
	c := qt.New(t)

	n, ok := ParseResumeRange("bytes=0-32767")
	c.Assert(ok, qt.IsTrue)
	c.Assert(n, qt.Equals, int64(32767))

	// A 308 without a Range header resets the offset to -1 (spec.md §8).
	_, ok = ParseResumeRange("")
	c.Assert(ok, qt.IsFalse)
}

func TestByteRangeHeader(t *testing.T) {
	c := qt.New(t)

	tail := int64(-100)
	c.Assert(ByteRange{End: &tail}.Header(), qt.Equals, "bytes=-100")

	start, end := int64(2), int64(4)
	c.Assert(ByteRange{Start: &start, End: &end}.Header(), qt.Equals, "bytes=2-4")

	c.Assert(ByteRange{}.IsRange(), qt.IsFalse)
	c.Assert(ByteRange{Start: &start}.IsRange(), qt.IsTrue)
}

func TestTransmitAndFinalContentRange(t *testing.T) {
	c := qt.New(t)
	c.Assert(TransmitContentRange(32768), qt.Equals, "bytes 32768-*/*")
	c.Assert(FinalContentRange(0, 5), qt.Equals, "bytes 0-4/5")
}
