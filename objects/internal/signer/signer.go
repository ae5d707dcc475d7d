// Package signer implements the §4.5 Signer: RSA-SHA256 signed URLs and
// signed POST policy documents, built only from Credentials() and standard
// cryptography, with no network dependency of its own.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"gcsobject/objects/internal/gcsproto"
	"gcsobject/objects/internal/transport"
	"gcsobject/objects/internal/types"
)

// Action is the signed-URL verb, mapped from the request's high-level intent.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionDelete
)

func (a Action) httpMethod() string {
	switch a {
	case ActionWrite:
		return "PUT"
	case ActionDelete:
		return "DELETE"
	default:
		return "GET"
	}
}

// URLRequest mirrors spec.md §3 SignedURLRequest.
type URLRequest struct {
	Action              Action
	Expires             int64 // Unix seconds
	ContentMD5          string
	ContentType         string
	ExtensionHeaders    map[string]string
	ResponseDisposition string
	ResponseType        string
	PromptSaveAs        bool
}

// FieldPair is an [$field, value] pair used by equals/startsWith conditions.
type FieldPair struct {
	Field string
	Value string
}

// ContentLengthRange is the {min, max} optional policy condition.
type ContentLengthRange struct {
	Min, Max int64
}

// PolicyRequest mirrors spec.md §3 SignedPolicyRequest.
type PolicyRequest struct {
	Expiration          int64 // Unix seconds
	Equals              []FieldPair
	StartsWith          []FieldPair
	ACL                 string
	SuccessRedirect     string
	SuccessStatus       string
	ContentLengthRange  *ContentLengthRange
}

// Policy is the signed POST policy document returned to the caller.
type Policy struct {
	String    string // the raw policy JSON
	Base64    string
	Signature string
}

// Signer produces signed URLs and policy documents for a single object,
// using the private key the supplied transport.RoundTripper exposes.
type Signer struct {
	RT transport.RoundTripper
}

// URL signs req for obj, returning the complete, query-stringed GCS URL.
func (s *Signer) URL(ctx types.Ctx, obj types.Object, req URLRequest) (string, error) {
	now := time.Now().Unix()
	if req.Expires <= now {
		return "", errors.Wrap(types.ErrInvalidArgument, "expires must be in the future")
	}

	creds, err := s.RT.Credentials(ctx)
	if err != nil {
		return "", err
	}

	resource := "/" + obj.Bucket + "/" + gcsproto.EncodeObjectName(obj.Name)
	extHeaders := canonicalExtensionHeaders(req.ExtensionHeaders)

	toSign := strings.Join([]string{
		req.Action.httpMethod(),
		req.ContentMD5,
		req.ContentType,
		strconv.FormatInt(req.Expires, 10),
		extHeaders + resource,
	}, "\n")

	sig, err := sign(creds.PrivateKeyPEM, []byte(toSign))
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("GoogleAccessId", creds.ClientEmail)
	q.Set("Expires", strconv.FormatInt(req.Expires, 10))
	q.Set("Signature", base64.StdEncoding.EncodeToString(sig))

	if req.ResponseType != "" {
		q.Set("response-content-type", req.ResponseType)
	}

	disposition := req.ResponseDisposition
	if disposition == "" && req.PromptSaveAs {
		disposition = fmt.Sprintf(`attachment; filename="%s"`, url.QueryEscape(obj.Name))
	}
	if disposition != "" {
		q.Set("response-content-disposition", disposition)
	}

	return gcsproto.DownloadBaseURL + resource + "?" + q.Encode(), nil
}

// canonicalExtensionHeaders renders x-goog-* extension headers for the
// canonical string-to-sign: lower-cased "name:value\n" lines, sorted by name.
func canonicalExtensionHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(strings.ToLower(name))
		b.WriteByte(':')
		b.WriteString(headers[name])
		b.WriteByte('\n')
	}
	return b.String()
}

// Policy signs req for obj, returning the {string, base64, signature} triple
// the caller embeds as hidden form fields in a browser-originated POST.
func (s *Signer) Policy(ctx types.Ctx, obj types.Object, req PolicyRequest) (*Policy, error) {
	now := time.Now().Unix()
	if req.Expiration <= now {
		return nil, errors.Wrap(types.ErrInvalidArgument, "expiration must be in the future")
	}

	creds, err := s.RT.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	conditions := []any{
		[]any{"eq", "$key", obj.Name},
		map[string]any{"bucket": obj.Bucket},
	}

	for _, p := range req.Equals {
		conditions = append(conditions, []any{"eq", fieldName(p.Field), p.Value})
	}
	for _, p := range req.StartsWith {
		conditions = append(conditions, []any{"starts-with", fieldName(p.Field), p.Value})
	}
	if req.ACL != "" {
		conditions = append(conditions, map[string]any{"acl": req.ACL})
	}
	if req.SuccessRedirect != "" {
		conditions = append(conditions, map[string]any{"success_action_redirect": req.SuccessRedirect})
	}
	if req.SuccessStatus != "" {
		conditions = append(conditions, map[string]any{"success_action_status": req.SuccessStatus})
	}
	if r := req.ContentLengthRange; r != nil {
		conditions = append(conditions, []any{"content-length-range", r.Min, r.Max})
	}

	policy := map[string]any{
		"expiration": time.Unix(req.Expiration, 0).UTC().Format("2006-01-02T15:04:05.000Z"),
		"conditions": conditions,
	}

	policyJSON, err := gcsproto.JSON.Marshal(policy)
	if err != nil {
		return nil, err
	}
	policyB64 := base64.StdEncoding.EncodeToString(policyJSON)

	sig, err := sign(creds.PrivateKeyPEM, []byte(policyB64))
	if err != nil {
		return nil, err
	}

	return &Policy{
		String:    string(policyJSON),
		Base64:    policyB64,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// fieldName ensures field pairs carry the "$field" form the policy grammar
// expects, tolerating callers who already included the sigil.
func fieldName(field string) string {
	if strings.HasPrefix(field, "$") {
		return field
	}
	return "$" + field
}

func sign(privateKeyPEM []byte, data []byte) ([]byte, error) {
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("gcsobject: signer: no PEM block in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "gcsobject: signer: parse private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("gcsobject: signer: private key is not RSA")
	}
	return key, nil
}
