package objects

import (
	"github.com/cockroachdb/errors"

	"gcsobject/objects/internal/types"
)

// ObjectHandle identifies a single remote object (spec.md §3). It is
// immutable except for its locally cached metadata, which is refreshed
// after any metadata-returning call (upload, getMetadata, copy, ...).
type ObjectHandle struct {
	client   *Client
	obj      types.Object
	metadata map[string]any
}

// Bucket returns the bucket name this handle addresses.
func (h *ObjectHandle) Bucket() string { return h.obj.Bucket }

// Name returns the object name this handle addresses.
func (h *ObjectHandle) Name() string { return h.obj.Name }

// Generation returns the generation this handle is scoped to, or 0 if
// unscoped (latest).
func (h *ObjectHandle) Generation() int64 { return h.obj.Generation }

// Metadata returns the locally cached metadata from the last
// metadata-returning call, or nil if none has happened yet.
func (h *ObjectHandle) Metadata() map[string]any { return h.metadata }

// WithGeneration returns a copy of h scoped to generation. Per spec.md §3,
// when set it scopes every subsequent operation — read, write
// preconditions, delete, copy source — to that generation.
func (h *ObjectHandle) WithGeneration(generation int64) *ObjectHandle {
	h2 := *h
	h2.obj.Generation = generation
	return &h2
}

// validate applies the §4's eagerly-raised "missing bucket" / "missing name"
// input-validation error, checked at the start of every operation that would
// otherwise build a URL from an empty path segment and reach the network.
func (h *ObjectHandle) validate() error {
	if h.obj.Bucket == "" {
		return errors.Wrap(types.ErrInvalidArgument, "missing bucket")
	}
	if h.obj.Name == "" {
		return errors.Wrap(types.ErrInvalidArgument, "missing name")
	}
	return nil
}

func (h *ObjectHandle) setMetadataFromAttrs(attrs *types.ObjectAttrs) {
	if attrs == nil {
		return
	}
	m := map[string]any{
		"bucket":          attrs.Bucket,
		"name":            attrs.Name,
		"generation":      attrs.Generation,
		"contentType":     attrs.ContentType,
		"contentEncoding": attrs.ContentEncoding,
		"size":            attrs.Size,
		"md5Hash":         attrs.MD5Hash,
		"crc32c":          attrs.CRC32C,
		"etag":            attrs.ETag,
	}
	if len(attrs.Metadata) > 0 {
		meta := make(map[string]any, len(attrs.Metadata))
		for k, v := range attrs.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	h.metadata = m
}
