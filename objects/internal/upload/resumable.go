package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/hashstream"
	"gcsobject/objects/internal/sessionstore"
	"gcsobject/objects/internal/transport"
	"gcsobject/objects/internal/types"
)

// RetryLimit bounds the retries variable of the §4.3 state machine at 5.
const RetryLimit = 5

// firstChunkLen is how many leading bytes of the payload are cached and
// compared across session resumption attempts to detect a diverged source.
const firstChunkLen = 16

// ContentOpener reproduces the full upload payload from byte 0. Resuming a
// session after a process restart re-reads the same logical content from
// the start and discards the prefix the server already has; callers backed
// by a file or in-memory buffer satisfy this naturally, matching spec.md
// §4.3's requirement that resumption "must not observe bytes before
// bytesWrittenServerSide+1" without ever trusting a stream that can't be
// replayed.
type ContentOpener func(ctx context.Context) (io.ReadCloser, error)

// ResumableConfig mirrors the resumable-relevant subset of spec.md §3
// UploadConfig.
type ResumableConfig struct {
	Metadata          Metadata
	Validation        types.Validation
	IfGenerationMatch bool
}

// Resumable drives the §4.3 resumable upload state machine: SessionStart,
// Probe and Transmit, with the error policy and persisted session state
// described there.
type Resumable struct {
	RT     transport.RoundTripper
	Store  *sessionstore.Store
	Logger zerolog.Logger
}

// httpStatusError carries the HTTP status that drove the error policy
// decision, distinguishing 404 and 5xx from opaque transport failures.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("gcsobject: resumable upload: http %d: %s", e.status, e.body)
}

var errDiverged = errors.New("gcsobject: resumable upload: session content diverged")

type state int

const (
	stateSessionStart state = iota
	stateProbe
	stateTransmit
)

// Upload runs the state machine to completion, returning the final object
// metadata or a fatal error. key identifies the persisted session record;
// it is conventionally the object name.
func (r *Resumable) Upload(ctx context.Context, obj types.Object, cfg ResumableConfig, opener ContentOpener) (*types.ObjectAttrs, error) {
	key := obj.Name

	rec, found, err := r.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	st := stateSessionStart
	sessionURI := ""
	offset := int64(-1)
	retries := 0
	if found && rec.URI != "" {
		sessionURI = rec.URI
		st = stateProbe
	}

	for {
		switch st {
		case stateSessionStart:
			uri, err := r.startSession(ctx, obj, cfg)
			if err != nil {
				next, fatal := r.classify(stateSessionStart, err, &retries)
				if fatal != nil {
					return nil, fatal
				}
				if next == stateSessionStart && !isNotFound(err) {
					r.sleep(ctx, retries)
				}
				st = next
				continue
			}
			sessionURI = uri
			offset = -1
			if err := r.Store.Put(ctx, key, sessionstore.Record{URI: sessionURI}); err != nil {
				return nil, err
			}
			st = stateTransmit

		case stateProbe:
			n, err := r.probe(ctx, sessionURI)
			if err != nil {
				next, fatal := r.classify(stateProbe, err, &retries)
				if fatal != nil {
					return nil, fatal
				}
				if next == stateProbe {
					r.sleep(ctx, retries)
				}
				st = next
				continue
			}
			// n is bytesWrittenServerSide (the last acknowledged byte, or -1
			// if none); Transmit resumes at the byte right after it.
			offset = n + 1
			st = stateTransmit

		case stateTransmit:
			rec, _, err := r.Store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			attrs, err := r.transmit(ctx, sessionURI, obj, key, offset, opener, cfg, rec)
			switch {
			case err == nil:
				if err := r.Store.Delete(ctx, key); err != nil {
					r.Logger.Warn().Err(err).Str("object", key).Msg("failed to clear resumable session record")
				}
				return attrs, nil
			case errors.Is(err, errDiverged):
				if err := r.Store.Delete(ctx, key); err != nil {
					return nil, err
				}
				sessionURI = ""
				offset = -1
				st = stateSessionStart
				continue
			case errors.Is(err, types.ErrFileNoUpload), errors.Is(err, types.ErrFileNoUploadDelete):
				// Integrity failure, not a transport/session problem: the
				// session is done (successfully, from the server's point of
				// view) and retrying it would just re-fetch the same bytes.
				if derr := r.Store.Delete(ctx, key); derr != nil {
					r.Logger.Warn().Err(derr).Str("object", key).Msg("failed to clear resumable session record")
				}
				return nil, err
			default:
				next, fatal := r.classify(stateTransmit, err, &retries)
				if fatal != nil {
					return nil, fatal
				}
				if next == stateSessionStart {
					if derr := r.Store.Delete(ctx, key); derr != nil {
						return nil, derr
					}
					sessionURI = ""
				}
				if next == stateProbe {
					r.sleep(ctx, retries)
				}
				st = next
			}
		}
	}
}

// classify applies the §4.3 error policy: 404 restarts the session, 5xx (or
// an opaque transport error) backs off and re-probes, anything else — or
// the retry budget being exhausted — is fatal. from is the state whose
// network call produced err: a SessionStart failure has no session URI to
// probe yet, so its 5xx/opaque-error case re-enters SessionStart itself
// rather than Probe.
func (r *Resumable) classify(from state, err error, retries *int) (state, error) {
	var status int
	var hse *httpStatusError
	if errors.As(err, &hse) {
		status = hse.status
	}

	switch {
	case status == http.StatusNotFound:
		if *retries >= RetryLimit {
			return 0, err
		}
		*retries++
		return stateSessionStart, nil
	case status == 0 || status/100 == 5:
		*retries++
		if *retries > RetryLimit {
			return 0, err
		}
		if from == stateSessionStart {
			return stateSessionStart, nil
		}
		return stateProbe, nil
	default:
		return 0, err
	}
}

// isNotFound reports whether err is the httpStatusError produced by a 404
// response, used to tell a SessionStart retry-after-backoff apart from a
// SessionStart retry-after-404 (spec.md §4.3 sleeps only on the 5xx path).
func isNotFound(err error) bool {
	var hse *httpStatusError
	return errors.As(err, &hse) && hse.status == http.StatusNotFound
}

// backOff implements spec.md §4.3's literal formula — 2^retries seconds
// plus up to 1000ms of jitter — against the cenkalti/backoff/v4 BackOff
// contract, rather than that library's own multiplicative-jitter policy.
type backOff struct{ n int }

func (b *backOff) NextBackOff() time.Duration {
	d := time.Duration(1<<uint(b.n))*time.Second + time.Duration(rand.Intn(1000))*time.Millisecond
	b.n++
	return d
}

func (b *backOff) Reset() { b.n = 0 }

var _ backoff.BackOff = (*backOff)(nil)

func (r *Resumable) sleep(ctx context.Context, retries int) {
	b := &backOff{n: retries - 1}
	if b.n < 0 {
		b.n = 0
	}
	d := b.NextBackOff()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (r *Resumable) startSession(ctx context.Context, obj types.Object, cfg ResumableConfig) (string, error) {
	meta := withName(cfg.Metadata, obj.Name)
	metaJSON, err := gcsproto.JSON.Marshal(meta)
	if err != nil {
		return "", err
	}

	url := gcsproto.ResumableStartURL(obj.Bucket) + "?uploadType=resumable&name=" + gcsproto.EncodeObjectName(obj.Name)
	if cfg.IfGenerationMatch && obj.Generation > 0 {
		url += fmt.Sprintf("&ifGenerationMatch=%d", obj.Generation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(metaJSON))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.ContentLength = int64(len(metaJSON))
	if ct, ok := cfg.Metadata["contentType"].(string); ok && ct != "" {
		req.Header.Set("X-Upload-Content-Type", ct)
	}

	resp, err := r.RT.SignedRequest(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &httpStatusError{status: resp.StatusCode, body: string(b)}
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", errors.New("gcsobject: resumable upload: start session: missing Location header")
	}
	return loc, nil
}

// probe issues a zero-length PUT to learn how much of the session the
// server has durably accepted. It returns -1 if the server reports nothing.
func (r *Resumable) probe(ctx context.Context, sessionURI string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, nil)
	if err != nil {
		return -1, err
	}
	req.ContentLength = 0
	req.Header.Set("Content-Range", gcsproto.ProbeContentRange)

	resp, err := r.RT.SignedRequest(ctx, req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPermanentRedirect || resp.StatusCode == 308 {
		if n, ok := gcsproto.ParseResumeRange(resp.Header.Get("Range")); ok {
			return n, nil
		}
		return -1, nil
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return -1, &httpStatusError{status: resp.StatusCode, body: string(b)}
	}
	// 200/201 here means the session had in fact already completed.
	return -1, nil
}

// transmit reconstructs the full payload from byte 0 (via opener), checks it
// against any cached firstChunk before sending a single byte to sessionURI,
// then streams everything past offset in one PUT until EOF. The payload is
// hashed in full regardless of offset, so the integrity check after a
// multi-attempt resume still covers bytes sent in earlier attempts.
func (r *Resumable) transmit(ctx context.Context, sessionURI string, obj types.Object, key string, offset int64, opener ContentOpener, cfg ResumableConfig, rec sessionstore.Record) (*types.ObjectAttrs, error) {
	src, err := opener(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head := make([]byte, firstChunkLen)
	n, rerr := io.ReadFull(src, head)
	if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
		return nil, rerr
	}
	head = head[:n]

	if len(rec.FirstChunk) > 0 {
		if !bytes.Equal(rec.FirstChunk, head) {
			return nil, errDiverged
		}
	} else {
		rec.FirstChunk = append([]byte(nil), head...)
		if err := r.Store.Put(ctx, key, rec); err != nil {
			return nil, err
		}
	}

	full := io.MultiReader(bytes.NewReader(head), src)

	var hasher *hashstream.Stream
	if cfg.Validation != types.ValidateNone {
		hasher = hashstream.New()
	}

	start := offset
	if start < 0 {
		start = 0
	}

	// The producer (hashing + offset-skip) and the in-flight PUT run as a
	// pump pair over an io.Pipe, coordinated by an errgroup so that either
	// side failing cancels the other instead of leaking a blocked goroutine.
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var hashed io.Reader = full
		if hasher != nil {
			hashed = hasher.TeeReader(full)
		}
		if offset > 0 {
			if _, err := io.CopyN(io.Discard, hashed, offset); err != nil && err != io.EOF {
				pw.CloseWithError(err)
				return err
			}
		}
		if _, err := io.Copy(pw, hashed); err != nil {
			pw.CloseWithError(err)
			return err
		}
		return pw.Close()
	})

	var attrs types.ObjectAttrs
	g.Go(func() error {
		req, err := http.NewRequestWithContext(gctx, http.MethodPut, sessionURI, pr)
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
		req.Header.Set("Content-Range", gcsproto.TransmitContentRange(start))
		req.ContentLength = -1

		resp, err := r.RT.SignedRequest(gctx, req)
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &httpStatusError{status: resp.StatusCode, body: string(b)}
		}
		return gcsproto.JSON.NewDecoder(resp.Body).Decode(&attrs)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ierr := verifyUploadIntegrity(ctx, r.RT, obj, cfg.Validation, hasher, &attrs, r.Logger); ierr != nil {
		return nil, ierr
	}

	return &attrs, nil
}
