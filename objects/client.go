// Package objects is the public client for the object-level GCS pipeline:
// streaming download with integrity checking, simple and resumable upload,
// RSA-SHA256 signed URLs and signed POST policies, and object metadata and
// lifecycle operations. Bucket enumeration, ACL CRUD, and project/IAM
// management are out of scope; authentication is delegated to whatever
// transport.RoundTripper the caller supplies.
package objects

import (
	"github.com/rs/zerolog"

	"gcsobject/objects/internal/sessionstore"
	"gcsobject/objects/internal/transport"
	"gcsobject/objects/internal/types"
)

// Client is the entry point: it holds the authenticated transport and the
// on-disk resumable session store shared by every handle it mints.
type Client struct {
	rt     transport.RoundTripper
	store  *sessionstore.Store
	logger zerolog.Logger
}

// NewClient builds a Client around an authenticated transport and a
// resumable session store. Use transport.NewDefault for service-account
// auth via golang.org/x/oauth2/google, and sessionstore.Open for the
// default per-user session file.
func NewClient(rt transport.RoundTripper, store *sessionstore.Store) *Client {
	return &Client{rt: rt, store: store, logger: zerolog.Nop()}
}

// WithLogger returns a copy of c that logs through logger instead of
// discarding log output. Warnings are emitted on integrity mismatches and
// best-effort cleanup failures; nothing is logged on the happy path.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c2 := *c
	c2.logger = logger
	return &c2
}

// Object returns a handle for the named object in bucket. The handle is
// created on demand and requires no teardown.
func (c *Client) Object(bucket, name string) *ObjectHandle {
	return &ObjectHandle{client: c, obj: types.Object{Bucket: bucket, Name: name}}
}
