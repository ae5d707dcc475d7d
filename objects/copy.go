package objects

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/types"
)

// CopyDestination is the §4.6 copy/move destination argument. It is a
// sealed sum type over three shapes — a bare name in the same bucket, a
// different bucket with the same name, or an arbitrary bucket/name pair —
// resolved by dispatch rather than by runtime type-sniffing (spec.md §9).
type CopyDestination interface {
	resolveDestination(src types.Object) types.Object
}

// BareName copies to the given name within the source object's own bucket.
type BareName string

func (n BareName) resolveDestination(src types.Object) types.Object {
	return types.Object{Bucket: src.Bucket, Name: string(n)}
}

// BucketRef copies to the same object name within a different bucket.
type BucketRef string

func (b BucketRef) resolveDestination(src types.Object) types.Object {
	return types.Object{Bucket: string(b), Name: src.Name}
}

// ObjectRef copies to an arbitrary bucket and name.
type ObjectRef struct {
	Bucket string
	Name   string
}

func (o ObjectRef) resolveDestination(types.Object) types.Object {
	return types.Object{Bucket: o.Bucket, Name: o.Name}
}

// Copy is the §4.6 copy operation. It returns a handle for the newly
// created destination object, with its metadata already populated from the
// server's response.
func (h *ObjectHandle) Copy(ctx context.Context, dest CopyDestination) (*ObjectHandle, error) {
	if dest == nil {
		return nil, errors.Wrap(types.ErrInvalidArgument, "missing copy destination")
	}
	destObj := dest.resolveDestination(h.obj)

	url := gcsproto.CopyURL(h.obj.Bucket, h.obj.Name, destObj.Bucket, destObj.Name)
	if h.obj.HasGeneration() {
		url += "?sourceGeneration=" + strconv.FormatInt(h.obj.Generation, 10)
	}

	var attrs types.ObjectAttrs
	if err := h.doJSON(ctx, http.MethodPost, url, nil, &attrs); err != nil {
		return nil, err
	}

	dst := h.client.Object(destObj.Bucket, destObj.Name)
	dst.setMetadataFromAttrs(&attrs)
	return dst, nil
}

// Move is the §4.6 move operation: copy followed by delete of the source,
// non-atomically. Per spec.md §7, a failure after a successful copy but
// before the delete completes is reported as the delete's error, with the
// destination object — returned here regardless of outcome — already
// existing.
func (h *ObjectHandle) Move(ctx context.Context, dest CopyDestination) (*ObjectHandle, error) {
	dst, err := h.Copy(ctx, dest)
	if err != nil {
		return nil, err
	}
	if err := h.Delete(ctx); err != nil {
		return dst, err
	}
	return dst, nil
}
