package objects

import (
	"context"
	"net/http"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/types"
)

func (h *ObjectHandle) metadataURL() string {
	url := gcsproto.ObjectMetadataURL(h.obj.Bucket, h.obj.Name)
	if q := gcsproto.GenerationQuery(h.obj.Generation); q != "" {
		url += "?" + q
	}
	return url
}

// GetMetadata is the §4.6 getMetadata operation: it replaces the handle's
// cached metadata with the server's current view.
func (h *ObjectHandle) GetMetadata(ctx context.Context) (*types.ObjectAttrs, error) {
	var attrs types.ObjectAttrs
	if err := h.doJSON(ctx, http.MethodGet, h.metadataURL(), nil, &attrs); err != nil {
		return nil, err
	}
	h.setMetadataFromAttrs(&attrs)
	return &attrs, nil
}

// SetMetadata is the §4.6 setMetadata operation: patch is sent verbatim as
// the PATCH body, relying on the service's JSON merge semantics where a
// null value unsets the corresponding field.
func (h *ObjectHandle) SetMetadata(ctx context.Context, patch map[string]any) (*types.ObjectAttrs, error) {
	var attrs types.ObjectAttrs
	if err := h.doJSON(ctx, http.MethodPatch, h.metadataURL(), patch, &attrs); err != nil {
		return nil, err
	}
	h.setMetadataFromAttrs(&attrs)
	return &attrs, nil
}

// Delete is the §4.6 delete operation.
func (h *ObjectHandle) Delete(ctx context.Context) error {
	return h.doJSON(ctx, http.MethodDelete, h.metadataURL(), nil, nil)
}
