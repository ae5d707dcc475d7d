package objects

import (
	"context"

	"gcsobject/objects/internal/signer"
)

// SignAction is the signed-URL verb, mapped to an HTTP method.
type SignAction = signer.Action

const (
	SignRead   = signer.ActionRead
	SignWrite  = signer.ActionWrite
	SignDelete = signer.ActionDelete
)

// SignedURLRequest mirrors spec.md §3 SignedURLRequest.
type SignedURLRequest = signer.URLRequest

// FieldPair is a [$field, value] condition pair for a signed policy.
type FieldPair = signer.FieldPair

// ContentLengthRange is the optional {min, max} policy condition.
type ContentLengthRange = signer.ContentLengthRange

// SignedPolicyRequest mirrors spec.md §3 SignedPolicyRequest.
type SignedPolicyRequest = signer.PolicyRequest

// SignedPolicy is the {string, base64, signature} triple returned by
// GetSignedPolicy.
type SignedPolicy = signer.Policy

func (h *ObjectHandle) signer() *signer.Signer {
	return &signer.Signer{RT: h.client.rt}
}

// GetSignedURL is the §4.5 signed URL operation.
func (h *ObjectHandle) GetSignedURL(ctx context.Context, req SignedURLRequest) (string, error) {
	if err := h.validate(); err != nil {
		return "", err
	}
	return h.signer().URL(ctx, h.obj, req)
}

// GetSignedPolicy is the §4.5 signed POST policy document operation.
func (h *ObjectHandle) GetSignedPolicy(ctx context.Context, req SignedPolicyRequest) (*SignedPolicy, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h.signer().Policy(ctx, h.obj, req)
}
