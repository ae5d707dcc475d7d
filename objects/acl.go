package objects

import (
	"context"
	"net/http"
	"strings"

	"gcsobject/objects/internal/gcsproto"
)

// MakePrivate is the §4.6 makePrivate operation. When strict is true the
// predefinedAcl is "private" (owner-only); otherwise "projectPrivate". The
// body clears any existing ACL array, since the service forbids combining
// predefinedAcl with an explicit acl list.
func (h *ObjectHandle) MakePrivate(ctx context.Context, strict bool) error {
	predefined := "projectPrivate"
	if strict {
		predefined = "private"
	}
	url := h.metadataURL()
	if strings.Contains(url, "?") {
		url += "&predefinedAcl=" + predefined
	} else {
		url += "?predefinedAcl=" + predefined
	}
	return h.doJSON(ctx, http.MethodPatch, url, map[string]any{"acl": nil}, nil)
}

// MakePublic is the §4.6 makePublic operation: it grants allUsers READER
// access via the object's ACL collection.
func (h *ObjectHandle) MakePublic(ctx context.Context) error {
	url := gcsproto.ACLURL(h.obj.Bucket, h.obj.Name)
	body := map[string]any{"entity": "allUsers", "role": "READER"}
	return h.doJSON(ctx, http.MethodPost, url, body, nil)
}
