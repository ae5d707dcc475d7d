// Package transport defines the HTTP authentication collaborator that the
// rest of the client depends on (spec.md §6): SignedRequest to perform an
// authenticated call, and Credentials to retrieve the signing key material
// used by objects/internal/signer. This package is the boundary; bucket
// enumeration, ACL CRUD and project/IAM management live on the other side of
// it and are out of scope here.
package transport

import (
	"context"
	"net/http"
)

// Credentials holds the service-account identity used to sign URLs and
// policy documents.
type Credentials struct {
	ClientEmail   string
	PrivateKeyPEM []byte
}

// RoundTripper is the authenticated HTTP collaborator every component in
// this module depends on. A caller that already has an OAuth2 token source
// (e.g. from google.golang.org/api or a service mesh sidecar) can supply
// their own implementation instead of Default.
type RoundTripper interface {
	// SignedRequest performs req with authentication applied and returns
	// the raw HTTP response; callers own closing resp.Body.
	SignedRequest(ctx context.Context, req *http.Request) (*http.Response, error)

	// Credentials returns the signing identity for this principal.
	Credentials(ctx context.Context) (Credentials, error)
}
