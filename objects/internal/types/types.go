// Package types holds the seams shared between the public objects package
// and its internal wire-level implementations (download, upload, signer).
package types

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

// Object identifies a single object within a bucket.
type Object struct {
	Bucket     string
	Name       string
	Generation int64 // 0 means unset / latest
}

// HasGeneration reports whether the object is scoped to a specific generation.
func (o Object) HasGeneration() bool { return o.Generation > 0 }

// Validation controls which digests are checked against the server.
type Validation int

const (
	ValidateAll Validation = iota // both crc32c and md5 (default)
	ValidateMD5
	ValidateCRC32C
	ValidateNone
)

func (v Validation) WantsMD5() bool    { return v == ValidateAll || v == ValidateMD5 }
func (v Validation) WantsCRC32C() bool { return v == ValidateAll || v == ValidateCRC32C }

// ObjectAttrs is the JSON object metadata returned by GCS for an object.
type ObjectAttrs struct {
	Bucket          string            `json:"bucket,omitempty"`
	Name            string            `json:"name,omitempty"`
	Generation      string            `json:"generation,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	Size            string            `json:"size,omitempty"`
	MD5Hash         string            `json:"md5Hash,omitempty"`
	CRC32C          string            `json:"crc32c,omitempty"`
	ETag            string            `json:"etag,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Downloader is the streaming handle returned by the download pipeline.
type Downloader interface {
	io.ReadCloser
	// Response carries the upstream HTTP headers, available once the
	// request has been issued (after the first Read).
	Response() (status int, header map[string][]string)
}

var (
	// ErrContentDownloadMismatch is CONTENT_DOWNLOAD_MISMATCH from spec.md §6.
	ErrContentDownloadMismatch = errors.New("gcsobject: CONTENT_DOWNLOAD_MISMATCH")
	// ErrFileNoUpload is FILE_NO_UPLOAD: upload integrity mismatch, remote object deleted.
	ErrFileNoUpload = errors.New("gcsobject: FILE_NO_UPLOAD")
	// ErrFileNoUploadDelete is FILE_NO_UPLOAD_DELETE: mismatch AND cleanup delete failed.
	ErrFileNoUploadDelete = errors.New("gcsobject: FILE_NO_UPLOAD_DELETE")

	ErrInvalidArgument    = errors.New("gcsobject: invalid argument")
	ErrObjectNotExist     = errors.New("gcsobject: object doesn't exist")
	ErrPreconditionFailed = errors.New("gcsobject: precondition failed")
)

// Ctx is a convenience alias used across the internal packages' data structs,
// following the "Ctx context.Context" field convention used elsewhere for
// request-scoped data structs.
type Ctx = context.Context
