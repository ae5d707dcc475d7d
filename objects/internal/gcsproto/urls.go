// Package gcsproto holds the wire-protocol helpers shared by the download,
// upload and metadata pipelines: URL construction, the x-goog-hash and
// Content-Range header grammars, and multipart body framing.
package gcsproto

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DownloadBaseURL is the public download endpoint (spec.md §6).
	DownloadBaseURL = "https://storage.googleapis.com"
	// UploadBaseURL is the resumable/multipart upload endpoint (spec.md §6).
	UploadBaseURL = "https://www.googleapis.com/upload/storage/v1/b"
	// JSONBaseURL is the JSON metadata API endpoint (spec.md §6).
	JSONBaseURL = "https://www.googleapis.com/storage/v1/b"
)

// EncodeObjectName percent-encodes an object name for embedding in a URL
// path segment, preserving '/' the way GCS object paths expect.
func EncodeObjectName(name string) string {
	return (&url.URL{Path: name}).EscapedPath()
}

// DownloadURL builds the media download URL for an object.
func DownloadURL(bucket, name string) string {
	return fmt.Sprintf("%s/%s/%s", DownloadBaseURL, bucket, EncodeObjectName(name))
}

// MultipartUploadURL builds the multipart simple-upload endpoint.
func MultipartUploadURL(bucket string) string {
	return fmt.Sprintf("%s/%s/o", UploadBaseURL, bucket)
}

// ResumableStartURL builds the resumable-session-start endpoint.
func ResumableStartURL(bucket string) string {
	return fmt.Sprintf("%s/%s/o", UploadBaseURL, bucket)
}

// ObjectMetadataURL builds the JSON metadata endpoint for an object.
func ObjectMetadataURL(bucket, name string) string {
	return fmt.Sprintf("%s/%s/o/%s", JSONBaseURL, bucket, EncodeObjectName(name))
}

// CopyURL builds the copyTo endpoint used by §4.6 copy.
func CopyURL(srcBucket, srcName, destBucket, destName string) string {
	return fmt.Sprintf("%s/%s/o/%s/copyTo/b/%s/o/%s",
		JSONBaseURL, srcBucket, EncodeObjectName(srcName), destBucket, EncodeObjectName(destName))
}

// ACLURL builds the object-level ACL collection endpoint used by makePublic.
func ACLURL(bucket, name string) string {
	return fmt.Sprintf("%s/%s/o/%s/acl", JSONBaseURL, bucket, EncodeObjectName(name))
}

// GenerationQuery returns the "generation=<n>" query parameter, or "" if gen is unset.
func GenerationQuery(gen int64) string {
	if gen <= 0 {
		return ""
	}
	return "generation=" + strconv.FormatInt(gen, 10)
}
