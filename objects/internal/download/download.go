// Package download implements the §4.1 Downloader: a lazily-started,
// streaming GET against the GCS media endpoint with integrity checking and
// transparent gzip decompression.
package download

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/hashstream"
	"gcsobject/objects/internal/transport"
	"gcsobject/objects/internal/types"
)

// Config mirrors spec.md §3 DownloadConfig.
type Config struct {
	Validation types.Validation
	Range      gcsproto.ByteRange
}

// Validate applies the §4.1 construction-time check: a range request
// combined with validation enabled is an immediate error.
func (c Config) Validate() error {
	if c.Range.IsRange() && c.Validation != types.ValidateNone {
		return errors.Wrap(types.ErrInvalidArgument, "cannot use validation with file ranges")
	}
	return nil
}

// Stream is the lazy, cancellable download handle returned to callers.
// The network request is issued on the first Read, not on creation.
type Stream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	rt        transport.RoundTripper
	obj       types.Object
	cfg       Config
	logger    zerolog.Logger

	once     sync.Once
	startErr error

	status int
	header http.Header

	body   io.ReadCloser // raw response body, closed on Close
	reader io.Reader     // the consumer-facing (possibly gunzipped) stream
	hasher *hashstream.Stream
	gzip   bool

	// deferred integrity check, evaluated once the body is exhausted
	checked bool
}

// New creates a download Stream. No network activity happens until Read is
// first called.
func New(ctx context.Context, rt transport.RoundTripper, obj types.Object, cfg Config, logger zerolog.Logger) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{ctx: ctx, cancel: cancel, rt: rt, obj: obj, cfg: cfg, logger: logger}, nil
}

func (s *Stream) start() {
	s.once.Do(func() {
		s.startErr = s.doStart()
	})
}

func (s *Stream) doStart() error {
	url := gcsproto.DownloadURL(s.obj.Bucket, s.obj.Name)
	if q := gcsproto.GenerationQuery(s.obj.Generation); q != "" {
		url += "?" + q
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	if h := s.cfg.Range.Header(); h != "" {
		req.Header.Set("Range", h)
	}

	resp, err := s.rt.SignedRequest(s.ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return errors.Newf("gcsobject: download %s/%s: http %d: %s", s.obj.Bucket, s.obj.Name, resp.StatusCode, body)
	}

	s.status = resp.StatusCode
	s.header = resp.Header
	s.body = resp.Body

	integrityEnabled := !s.cfg.Range.IsRange() && s.cfg.Validation != types.ValidateNone

	var raw io.Reader = resp.Body
	if integrityEnabled {
		s.hasher = hashstream.New()
		raw = s.hasher.TeeReader(resp.Body)
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		s.gzip = true
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return err
		}
		s.reader = gz
	} else {
		s.reader = raw
	}

	return nil
}

// Response returns the upstream status code and headers, valid after the
// first Read (or error) has occurred.
func (s *Stream) Response() (int, map[string][]string) {
	return s.status, map[string][]string(s.header)
}

// Read implements io.Reader. It triggers the lazy request on first call.
func (s *Stream) Read(p []byte) (int, error) {
	s.start()
	if s.startErr != nil {
		return 0, s.startErr
	}

	n, err := s.reader.Read(p)
	if err == io.EOF {
		if verr := s.verifyOnEOF(); verr != nil {
			return n, verr
		}
	}
	return n, err
}

func (s *Stream) verifyOnEOF() error {
	if s.checked || s.hasher == nil {
		return nil
	}
	s.checked = true

	gh := gcsproto.ParseGoogHash(s.header.Get("x-goog-hash"))

	if s.cfg.Validation.WantsCRC32C() && gh.CRC32C != "" {
		want, err := hashstream.DecodeServerCRC32C(gh.CRC32C)
		if err == nil && !s.hasher.Test(hashstream.CRC32C, want) {
			s.logger.Warn().Str("object", s.obj.Name).Msg("crc32c mismatch on download")
			return types.ErrContentDownloadMismatch
		}
	}
	if s.cfg.Validation.WantsMD5() && gh.MD5 != "" {
		if !s.hasher.Test(hashstream.MD5, gh.MD5) {
			s.logger.Warn().Str("object", s.obj.Name).Msg("md5 mismatch on download")
			return types.ErrContentDownloadMismatch
		}
	}
	return nil
}

// Close aborts any in-flight request and releases the socket. Per spec.md
// §5, this never touches persisted session state (downloads have none).
func (s *Stream) Close() error {
	s.cancel()
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

var _ types.Downloader = (*Stream)(nil)
