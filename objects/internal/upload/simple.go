// Package upload implements the §4.2 SimpleUploader and the §4.3
// ResumableUploader state machine.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/hashstream"
	"gcsobject/objects/internal/transport"
	"gcsobject/objects/internal/types"
)

// Metadata is the opaque JSON metadata object sent with an upload, plus the
// fields this module itself sets (gzip content-encoding, content type).
type Metadata map[string]any

// Simple performs a single-shot multipart upload (spec.md §4.2). It is used
// when UploadConfig.Resumable is false, or for small payloads. Like the
// resumable path, the transmitted bytes are hashed in flight and checked
// against the server's returned digests once the upload completes.
func Simple(ctx context.Context, rt transport.RoundTripper, obj types.Object, meta Metadata, content io.Reader, validation types.Validation, ifGenerationMatch bool, logger zerolog.Logger) (*types.ObjectAttrs, error) {
	metaJSON, err := gcsproto.JSON.Marshal(withName(meta, obj.Name))
	if err != nil {
		return nil, err
	}

	var hasher *hashstream.Stream
	if validation != types.ValidateNone {
		hasher = hashstream.New()
		content = hasher.TeeReader(content)
	}

	body, contentType, err := gcsproto.MultipartBody(metaJSON, content)
	if err != nil {
		return nil, err
	}

	url := gcsproto.MultipartUploadURL(obj.Bucket) + "?uploadType=multipart&name=" + gcsproto.EncodeObjectName(obj.Name)
	if ifGenerationMatch && obj.Generation > 0 {
		url += fmt.Sprintf("&ifGenerationMatch=%d", obj.Generation)
	}

	// Buffer the body so the request can be retried by the caller if
	// SignedRequest itself fails before any bytes reach the wire; the
	// multipart framing is cheap relative to object content in practice.
	buf, ok := body.(*bytes.Buffer)
	var reqBody io.Reader = body
	var contentLength int64 = -1
	if ok {
		contentLength = int64(buf.Len())
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if contentLength >= 0 {
		req.ContentLength = contentLength
	}

	resp, err := rt.SignedRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("gcsobject: simple upload %s/%s: http %d: %s", obj.Bucket, obj.Name, resp.StatusCode, b)
	}

	var attrs types.ObjectAttrs
	if err := gcsproto.JSON.NewDecoder(resp.Body).Decode(&attrs); err != nil {
		return nil, err
	}

	if err := verifyUploadIntegrity(ctx, rt, obj, validation, hasher, &attrs, logger); err != nil {
		return nil, err
	}
	return &attrs, nil
}

// verifyUploadIntegrity compares the locally computed digest of the
// transmitted bytes against the server's returned object metadata, and
// attempts to delete the remote object on mismatch, shared by the simple
// and resumable upload paths.
func verifyUploadIntegrity(ctx context.Context, rt transport.RoundTripper, obj types.Object, v types.Validation, hasher *hashstream.Stream, attrs *types.ObjectAttrs, logger zerolog.Logger) error {
	if v == types.ValidateNone {
		return nil
	}

	mismatch := false
	if v.WantsCRC32C() && attrs.CRC32C != "" && !hasher.Test(hashstream.CRC32C, attrs.CRC32C) {
		mismatch = true
	}
	if v.WantsMD5() && attrs.MD5Hash != "" && !hasher.Test(hashstream.MD5, attrs.MD5Hash) {
		mismatch = true
	}
	if !mismatch {
		return nil
	}

	logger.Warn().Str("object", obj.Name).Msg("upload integrity mismatch, deleting remote object")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, gcsproto.ObjectMetadataURL(obj.Bucket, obj.Name), nil)
	if err != nil {
		return errors.Wrapf(types.ErrFileNoUploadDelete, "%v", err)
	}
	resp, err := rt.SignedRequest(ctx, req)
	if err != nil {
		return errors.Wrapf(types.ErrFileNoUploadDelete, "%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return errors.Wrapf(types.ErrFileNoUploadDelete, "http %d", resp.StatusCode)
	}
	return types.ErrFileNoUpload
}

func withName(meta Metadata, name string) Metadata {
	out := Metadata{}
	for k, v := range meta {
		out[k] = v
	}
	out["name"] = name
	return out
}
