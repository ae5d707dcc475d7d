package objects

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/types"
)

// doJSON issues method against url with an optional JSON body, decoding a
// successful JSON response into out (which may be nil to discard the body).
// Shared by the metadata, copy, and ACL operations in §4.6.
func (h *ObjectHandle) doJSON(ctx context.Context, method, url string, body any, out any) error {
	if err := h.validate(); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := gcsproto.JSON.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, err := h.client.rt.SignedRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errors.Wrapf(types.ErrObjectNotExist, "%s", b)
		case http.StatusPreconditionFailed:
			return errors.Wrapf(types.ErrPreconditionFailed, "%s", b)
		default:
			return errors.Newf("gcsobject: %s %s: http %d: %s", method, url, resp.StatusCode, b)
		}
	}
	if out == nil {
		return nil
	}
	return gcsproto.JSON.NewDecoder(resp.Body).Decode(out)
}
