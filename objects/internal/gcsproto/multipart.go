package gcsproto

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/textproto"
)

// MultipartBody builds the two-part "multipart/related" body GCS's simple
// upload endpoint expects: a JSON metadata part followed by the object
// content part (spec.md §4.2).
func MultipartBody(metadataJSON []byte, content io.Reader) (body io.Reader, contentType string, err error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	metaPart, err := w.CreatePart(partHeader("application/json; charset=UTF-8"))
	if err != nil {
		return nil, "", err
	}
	if _, err := metaPart.Write(metadataJSON); err != nil {
		return nil, "", err
	}

	contentPart, err := w.CreatePart(partHeader("application/octet-stream"))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(contentPart, content); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	// GCS expects "multipart/related", not multipart.Writer's default
	// "multipart/form-data"; reuse its boundary with the right top-level type.
	return buf, "multipart/related; boundary=" + w.Boundary(), nil
}

func partHeader(contentType string) textproto.MIMEHeader {
	return textproto.MIMEHeader{"Content-Type": {contentType}}
}
