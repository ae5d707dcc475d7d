// Package sessionstore persists the ResumableSessionRecord described in
// spec.md §3/§6/§9: a minimal key/value store, keyed by object name, backed
// by a single JSON file under a per-user config directory (namespace
// "gcloud-node"), with atomic {uri, firstChunk} writes via temp-file+rename.
package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"

	"gcsobject/objects/internal/gcsproto"
)

// Record is the persisted state for one in-flight resumable upload.
type Record struct {
	URI        string `json:"uri"`
	FirstChunk []byte `json:"firstChunk,omitempty"` // up to 16 raw bytes
}

// Store is a key/value store of Records keyed by object name.
//
// The on-disk layout is one JSON file containing a map of key to Record;
// an implementation-neutral choice per spec.md §9. Concurrent access to the
// same key from a single process is serialized with an internal lock map;
// concurrent access from multiple processes is not (callers must serialize
// uploads to the same object name per spec.md §5).
type Store struct {
	path  string
	locks *lockMap

	mu   sync.Mutex // guards loading/saving the on-disk map
	data map[string]Record
}

const configNamespace = "gcloud-node"

// Open opens (creating if necessary) the default per-user session store.
func Open() (*Store, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".config", configNamespace)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return OpenAt(filepath.Join(dir, "resumable-sessions.json"))
}

// OpenAt opens a Store backed by the given file path, creating the parent
// directory if needed. Exposed so callers (and tests) can sandbox storage.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	s := &Store{path: path, locks: newLockMap(), data: map[string]Record{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return gcsproto.JSON.Unmarshal(raw, &s.data)
}

// saveLocked must be called with s.mu held.
func (s *Store) saveLocked() error {
	raw, err := gcsproto.JSON.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".resumable-sessions-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Get returns the persisted record for key, if any.
func (s *Store) Get(ctx context.Context, key string) (Record, bool, error) {
	var (
		rec Record
		ok  bool
	)
	err := s.locks.Run(ctx, key, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok = s.data[key]
		return nil
	})
	return rec, ok, err
}

// Put writes rec for key, atomically replacing any existing record.
func (s *Store) Put(ctx context.Context, key string, rec Record) error {
	return s.locks.Run(ctx, key, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.data[key] = rec
		return s.saveLocked()
	})
}

// Delete removes the persisted record for key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.locks.Run(ctx, key, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.data[key]; !ok {
			return nil
		}
		delete(s.data, key)
		return s.saveLocked()
	})
}
