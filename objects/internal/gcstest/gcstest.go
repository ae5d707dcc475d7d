// Package gcstest is an in-memory fake of the GCS object surface this
// module talks to, built as an httptest fixture for this module's own
// tests: simple and resumable upload, download with Range and x-goog-hash,
// and object metadata/copy/delete. It is deliberately narrow — no bucket
// listing, no compose, no ACL persistence beyond what makePublic/
// makePrivate need to round-trip.
package gcstest

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/bluele/gcache"

	"gcsobject/objects/internal/gcsproto"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// object is one stored object's content and metadata.
type object struct {
	content     []byte
	generation  int64
	contentType string
	metadata    map[string]string
	acl         []map[string]any
}

// session is one in-flight resumable upload.
type session struct {
	bucket, name string
	metadata     map[string]any
	received     []byte
}

// Server is an in-memory fake of the endpoints this module's transport
// talks to. Tamper lets tests corrupt bytes served on download without
// touching the stored object, to exercise CONTENT_DOWNLOAD_MISMATCH.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	objects  map[string]*object // "bucket/name" -> object
	sessions gcache.Cache       // session id (string) -> *session, LRU-bounded like gcsemu's uploadIds
	nextID   int

	// Tamper, if set, is applied to bytes about to be served for name.
	Tamper func(bucket, name string, content []byte) []byte

	// FailDelete, if set, is consulted on every object DELETE; returning
	// true makes that delete fail with 500 instead of removing the
	// object, for tests exercising a copy-succeeds/delete-fails sequence.
	FailDelete func(bucket, name string) bool

	// FailResumablePut, if set, is consulted before every resumable
	// session PUT (Probe or Transmit) is served, with attempt a 1-based
	// count of calls made to this endpoint across the server's lifetime.
	// Returning ok=true serves status instead of the normal response,
	// for tests exercising the 404-restart and 5xx-backoff error policy
	// without touching the underlying session or stored object.
	FailResumablePut func(attempt int) (status int, ok bool)

	resumableAttempts int
	generation        int64
}

// New starts a fake GCS server. Callers must Close it via the embedded
// httptest.Server.
func New() *Server {
	s := &Server{
		objects:  map[string]*object{},
		sessions: gcache.New(1024).LRU().Build(),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// session looks up an in-flight resumable upload by id.
func (s *Server) session(id string) (*session, bool) {
	v, err := s.sessions.GetIFPresent(id)
	if err != nil {
		return nil, false
	}
	return v.(*session), true
}

func key(bucket, name string) string { return bucket + "/" + name }

// PutObject seeds the store directly, bypassing the upload protocol.
func (s *Server) PutObject(bucket, name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.objects[key(bucket, name)] = &object{content: content, generation: s.generation}
}

// SeedSession opens a resumable session as if SessionStart had already run
// and the server had already durably received the first len(received)
// bytes, for tests exercising Probe/Transmit continuation without replaying
// a full upload.
func (s *Server) SeedSession(bucket, name string, received []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	_ = s.sessions.Set(strconv.Itoa(id), &session{
		bucket:   bucket,
		name:     name,
		metadata: map[string]any{},
		received: append([]byte(nil), received...),
	})
	return s.URL + "/session/" + strconv.Itoa(id)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"):
		s.handleUploadStart(w, r)
	case strings.HasPrefix(r.URL.Path, "/session/"):
		s.handleResumablePut(w, r)
	case strings.HasPrefix(r.URL.Path, "/storage/v1/b/"):
		s.handleJSONAPI(w, r)
	default:
		s.handleMedia(w, r)
	}
}

// handleUploadStart handles both multipart (uploadType=multipart) and
// resumable-start (uploadType=resumable) POSTs, matching spec.md §4.2/§4.3.
func (s *Server) handleUploadStart(w http.ResponseWriter, r *http.Request) {
	bucket, name := pathAfter(r.URL.Path, "/upload/storage/v1/b/", "/o")
	if name == "" {
		name = r.URL.Query().Get("name")
	}

	switch r.URL.Query().Get("uploadType") {
	case "resumable":
		meta := map[string]any{}
		_ = gcsproto.JSON.NewDecoder(r.Body).Decode(&meta)
		if n, ok := meta["name"].(string); ok && n != "" {
			name = n
		}

		s.mu.Lock()
		s.nextID++
		id := s.nextID
		_ = s.sessions.Set(strconv.Itoa(id), &session{bucket: bucket, name: name, metadata: meta})
		s.mu.Unlock()

		w.Header().Set("Location", s.URL+"/session/"+strconv.Itoa(id))
		w.WriteHeader(http.StatusOK)

	case "multipart":
		content, meta, err := parseMultipart(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if n, ok := meta["name"].(string); ok && n != "" {
			name = n
		}
		obj := s.store(bucket, name, content, meta)
		writeAttrs(w, bucket, name, obj)

	default:
		http.Error(w, "unsupported uploadType", http.StatusBadRequest)
	}
}

// handleResumablePut handles both the zero-length Probe PUT and the real
// Transmit PUT against a session URI, matching spec.md §4.3.
func (s *Server) handleResumablePut(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.resumableAttempts++
	attempt := s.resumableAttempts
	s.mu.Unlock()

	if s.FailResumablePut != nil {
		if status, ok := s.FailResumablePut(attempt); ok {
			http.Error(w, "injected failure", status)
			return
		}
	}

	id := strings.TrimPrefix(r.URL.Path, "/session/")

	sess, ok := s.session(id)
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	cr := r.Header.Get("Content-Range")

	if cr == gcsproto.ProbeContentRange {
		s.mu.Lock()
		n := len(sess.received)
		s.mu.Unlock()
		if n == 0 {
			w.WriteHeader(308)
			return
		}
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
		w.WriteHeader(308)
		return
	}

	start, _ := parseTransmitStart(cr)

	buf, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	if start <= int64(len(sess.received)) {
		overlap := int64(len(sess.received)) - start
		if overlap < int64(len(buf)) {
			sess.received = append(sess.received, buf[overlap:]...)
		}
	}
	received := append([]byte(nil), sess.received...)
	s.sessions.Remove(id)
	s.mu.Unlock()

	obj := s.store(sess.bucket, sess.name, received, sess.metadata)
	writeAttrs(w, sess.bucket, sess.name, obj)
}

func parseTransmitStart(contentRange string) (int64, bool) {
	rest := strings.TrimPrefix(contentRange, "bytes ")
	lo, _, found := strings.Cut(rest, "-")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseMultipart reads the two-part "multipart/related" body a simple
// upload sends: a JSON metadata part followed by the content part. Mirrors,
// from the consuming side, what gcsproto.MultipartBody produces.
func parseMultipart(r *http.Request) (content []byte, meta map[string]any, err error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	metaRaw, err := io.ReadAll(metaPart)
	if err != nil {
		return nil, nil, err
	}
	meta = map[string]any{}
	if err := gcsproto.JSON.Unmarshal(metaRaw, &meta); err != nil {
		return nil, nil, err
	}

	contentPart, err := mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	content, err = io.ReadAll(contentPart)
	if err != nil {
		return nil, nil, err
	}
	return content, meta, nil
}

func (s *Server) store(bucket, name string, content []byte, meta map[string]any) *object {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++

	obj := &object{content: content, generation: s.generation}
	if ct, ok := meta["contentType"].(string); ok {
		obj.contentType = ct
	}
	if m, ok := meta["metadata"].(map[string]any); ok {
		obj.metadata = map[string]string{}
		for k, v := range m {
			if sv, ok := v.(string); ok {
				obj.metadata[k] = sv
			}
		}
	}
	s.objects[key(bucket, name)] = obj
	return obj
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	bucket, name := pathAfter(r.URL.Path, "/", "")
	s.mu.Lock()
	obj, ok := s.objects[key(bucket, name)]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	content := obj.content
	if s.Tamper != nil {
		content = s.Tamper(bucket, name, content)
	}

	if rng := r.Header.Get("Range"); rng != "" {
		start, end, ok := applyRange(rng, len(content))
		if !ok {
			http.Error(w, "bad range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(content[start : end+1])
		return
	}

	w.Header().Set("x-goog-hash", xGoogHash(obj.content))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// xGoogHash renders the crc32c/md5 response header exactly the way GCS
// does: crc32c as an 8-byte value of which only the trailing 4 bytes are
// the real checksum (spec.md §9's documented server quirk), md5 as its
// direct 16-byte digest.
func xGoogHash(content []byte) string {
	sum := crc32.Checksum(content, crc32cTable)
	raw := make([]byte, 8)
	binary.BigEndian.PutUint32(raw[4:], sum)
	crc := base64.StdEncoding.EncodeToString(raw)

	sumMD5 := md5.Sum(content)
	md5b64 := base64.StdEncoding.EncodeToString(sumMD5[:])

	return fmt.Sprintf("crc32c=%s,md5=%s", crc, md5b64)
}

func applyRange(header string, size int) (start, end int, ok bool) {
	rest := strings.TrimPrefix(header, "bytes=")
	if strings.HasPrefix(rest, "-") {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, 0, false
		}
		start = size + n
		if start < 0 {
			start = 0
		}
		return start, size - 1, true
	}
	lo, hi, found := strings.Cut(rest, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, false
	}
	if hi == "" {
		return start, size - 1, true
	}
	end, err = strconv.Atoi(hi)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

func (s *Server) handleJSONAPI(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.Contains(r.URL.Path, "/copyTo/b/"):
		s.handleCopy(w, r)
	case strings.HasSuffix(r.URL.Path, "/acl"):
		s.handleACL(w, r)
	default:
		s.handleMetadataAPI(w, r)
	}
}

func (s *Server) handleMetadataAPI(w http.ResponseWriter, r *http.Request) {
	bucket, name := pathAfter(r.URL.Path, "/storage/v1/b/", "/o")

	s.mu.Lock()
	obj, ok := s.objects[key(bucket, name)]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeAttrs(w, bucket, name, obj)
	case http.MethodPatch:
		patch := map[string]any{}
		_ = gcsproto.JSON.NewDecoder(r.Body).Decode(&patch)
		s.mu.Lock()
		if q := r.URL.Query().Get("predefinedAcl"); q != "" {
			obj.acl = nil
		}
		if m, ok := patch["metadata"].(map[string]any); ok {
			if obj.metadata == nil {
				obj.metadata = map[string]string{}
			}
			for k, v := range m {
				if v == nil {
					delete(obj.metadata, k)
				} else if sv, ok := v.(string); ok {
					obj.metadata[k] = sv
				}
			}
		}
		s.mu.Unlock()
		writeAttrs(w, bucket, name, obj)
	case http.MethodDelete:
		if s.FailDelete != nil && s.FailDelete(bucket, name) {
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		delete(s.objects, key(bucket, name))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	// Path shape: /storage/v1/b/{srcBucket}/o/{srcName}/copyTo/b/{dstBucket}/o/{dstName}
	rest := strings.TrimPrefix(r.URL.Path, "/storage/v1/b/")
	srcBucket, rest, _ := strings.Cut(rest, "/o/")
	srcName, rest, _ := strings.Cut(rest, "/copyTo/b/")
	dstBucket, dstName, _ := strings.Cut(rest, "/o/")

	s.mu.Lock()
	src, ok := s.objects[key(srcBucket, srcName)]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	content := append([]byte(nil), src.content...)
	dst := s.store(dstBucket, dstName, content, map[string]any{"contentType": src.contentType})
	writeAttrs(w, dstBucket, dstName, dst)
}

func (s *Server) handleACL(w http.ResponseWriter, r *http.Request) {
	bucket, name := pathAfter(r.URL.Path, "/storage/v1/b/", "/o")
	name = strings.TrimSuffix(name, "/acl")

	s.mu.Lock()
	obj, ok := s.objects[key(bucket, name)]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	entry := map[string]any{}
	_ = gcsproto.JSON.NewDecoder(r.Body).Decode(&entry)

	s.mu.Lock()
	obj.acl = append(obj.acl, entry)
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	_ = gcsproto.JSON.NewEncoder(w).Encode(entry)
}

func writeAttrs(w http.ResponseWriter, bucket, name string, obj *object) {
	attrs := map[string]any{
		"bucket":      bucket,
		"name":        name,
		"generation":  strconv.FormatInt(obj.generation, 10),
		"size":        strconv.Itoa(len(obj.content)),
		"contentType": obj.contentType,
		"md5Hash":     md5Base64(obj.content),
		"crc32c":      crc32cBase64(obj.content),
		"etag":        strconv.FormatInt(obj.generation, 10),
	}
	if len(obj.metadata) > 0 {
		attrs["metadata"] = obj.metadata
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = gcsproto.JSON.NewEncoder(w).Encode(attrs)
}

func md5Base64(content []byte) string {
	sum := md5.Sum(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func crc32cBase64(content []byte) string {
	sum := crc32.Checksum(content, crc32cTable)
	b := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return base64.StdEncoding.EncodeToString(b)
}

// pathAfter splits a path of the form prefix+bucket+mid+name into
// (bucket, name), url-decoding name. mid may be empty, in which case the
// remainder after the first '/' following prefix is the (still-encoded)
// bucket/name pair used by the plain media endpoint.
func pathAfter(path, prefix, mid string) (bucket, name string) {
	rest := strings.TrimPrefix(path, prefix)
	if mid == "" {
		bucket, name, _ = strings.Cut(rest, "/")
		name = urlDecode(name)
		return bucket, name
	}
	bucket, rest, found := strings.Cut(rest, mid)
	if !found {
		return bucket, ""
	}
	name = strings.TrimPrefix(rest, "/")
	name = urlDecode(name)
	return bucket, name
}

func urlDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
