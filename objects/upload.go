package objects

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"

	"gcsobject/objects/internal/types"
	"gcsobject/objects/internal/upload"
)

// ContentOpener reproduces an upload payload from byte 0, possibly more
// than once across resumable retries; see upload.ContentOpener.
type ContentOpener = upload.ContentOpener

// UploadConfig mirrors spec.md §3 UploadConfig.
type UploadConfig struct {
	// Gzip, if true, compresses the outgoing byte stream and sets
	// metadata.contentEncoding = "gzip".
	Gzip bool
	// Resumable defaults to true when nil. When false, a single-shot
	// upload is used.
	Resumable *bool
	// Validation defaults to types.ValidateAll (both digests) at its zero
	// value.
	Validation types.Validation
	// Metadata is sent as the initial upload metadata object.
	Metadata map[string]any
	// IfGenerationMatch, when true and the handle has a generation set,
	// makes the upload conditional on that generation.
	IfGenerationMatch bool
}

func (h *ObjectHandle) isResumable(cfg UploadConfig) bool {
	return cfg.Resumable == nil || *cfg.Resumable
}

// Upload drives either the simple or resumable pipeline depending on
// cfg.Resumable, replacing the handle's cached metadata with the server's
// response on success.
func (h *ObjectHandle) Upload(ctx context.Context, cfg UploadConfig, opener ContentOpener) (*types.ObjectAttrs, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	meta := upload.Metadata{}
	for k, v := range cfg.Metadata {
		meta[k] = v
	}
	if cfg.Gzip {
		meta["contentEncoding"] = "gzip"
	}
	opener = gzipOpener(opener, cfg.Gzip)

	ifGenMatch := cfg.IfGenerationMatch && h.obj.HasGeneration()

	var attrs *types.ObjectAttrs
	var err error
	if h.isResumable(cfg) {
		r := &upload.Resumable{RT: h.client.rt, Store: h.client.store, Logger: h.client.logger}
		attrs, err = r.Upload(ctx, h.obj, upload.ResumableConfig{
			Metadata:          meta,
			Validation:        cfg.Validation,
			IfGenerationMatch: ifGenMatch,
		}, opener)
	} else {
		var content io.ReadCloser
		content, err = opener(ctx)
		if err == nil {
			defer content.Close()
			attrs, err = upload.Simple(ctx, h.client.rt, h.obj, meta, content, cfg.Validation, ifGenMatch, h.client.logger)
		}
	}
	if err != nil {
		return nil, err
	}
	h.setMetadataFromAttrs(attrs)
	return attrs, nil
}

// UploadBytes is a convenience that uploads an in-memory buffer.
func (h *ObjectHandle) UploadBytes(ctx context.Context, cfg UploadConfig, data []byte) (*types.ObjectAttrs, error) {
	return h.Upload(ctx, cfg, func(context.Context) (io.ReadCloser, error) {
		return readCloser{bytes.NewReader(data)}, nil
	})
}

// UploadFile is a convenience that uploads the contents of a local file,
// reopening it on every resumable retry attempt.
func (h *ObjectHandle) UploadFile(ctx context.Context, cfg UploadConfig, path string) (*types.ObjectAttrs, error) {
	return h.Upload(ctx, cfg, func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// readCloser adapts an io.Reader with no Close semantics (e.g. a
// bytes.Reader) to io.ReadCloser.
type readCloser struct{ io.Reader }

func (readCloser) Close() error { return nil }

// gzipOpener wraps inner so every reopened attempt yields the gzip
// compression of the same underlying bytes, streamed through an io.Pipe so
// compression never buffers the whole payload in memory.
func gzipOpener(inner ContentOpener, enabled bool) ContentOpener {
	if !enabled {
		return inner
	}
	return func(ctx context.Context) (io.ReadCloser, error) {
		src, err := inner(ctx)
		if err != nil {
			return nil, err
		}
		pr, pw := io.Pipe()
		go func() {
			defer src.Close()
			gz := gzip.NewWriter(pw)
			if _, err := io.Copy(gz, src); err != nil {
				gz.Close()
				pw.CloseWithError(err)
				return
			}
			if err := gz.Close(); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.Close()
		}()
		return pr, nil
	}
}
