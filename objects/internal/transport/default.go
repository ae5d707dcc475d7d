package transport

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// scopes is the OAuth2 scope requested for the default transport, matching
// the read/write surface this client needs (objects, not buckets/IAM).
var scopes = []string{"https://www.googleapis.com/auth/devstorage.read_write"}

// Default is a RoundTripper backed by a service-account JSON key, using
// golang.org/x/oauth2/google to mint tokens and extract signing key material,
// the same way cloud.google.com/go/storage's own transport layer does.
type Default struct {
	creds *google.Credentials
	http  *http.Client
}

// NewDefault builds a Default transport from service-account JSON key bytes.
func NewDefault(ctx context.Context, serviceAccountJSON []byte) (*Default, error) {
	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, scopes...)
	if err != nil {
		return nil, err
	}
	return &Default{
		creds: creds,
		http:  &http.Client{Transport: &oauth2.Transport{Source: creds.TokenSource}},
	}, nil
}

func (d *Default) SignedRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.http.Do(req.WithContext(ctx))
}

func (d *Default) Credentials(ctx context.Context) (Credentials, error) {
	jwt, err := google.JWTConfigFromJSON(d.creds.JSON, scopes...)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		ClientEmail:   jwt.Email,
		PrivateKeyPEM: jwt.PrivateKey,
	}, nil
}

var _ RoundTripper = (*Default)(nil)
