package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FSStore persists results as JSON files under a root directory.
// It is the default backend: workers and the parent process share only the
// filesystem, so results written by a worker can be reloaded by the parent
// without any serialization of live objects across the process boundary.
//
// A transaction buffers writes and commits them at End, each via a
// temp-file-plus-rename so the group appears atomically to later readers.
type FSStore struct {
	root string

	txnMu sync.Mutex // serializes whole transactions

	mu      sync.Mutex // guards inTxn and pending
	inTxn   bool
	pending map[string]*Result
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("fsstore: root directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

// Root returns the store's root directory.
func (s *FSStore) Root() string {
	return s.root
}

// Exists reports whether a result file is present for key.
func (s *FSStore) Exists(key string) bool {
	s.mu.Lock()
	if s.inTxn {
		if _, ok := s.pending[key]; ok {
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()

	info, err := os.Stat(s.path(key))
	return err == nil && !info.IsDir()
}

// Get reads the result stored under key.
func (s *FSStore) Get(key string) (*Result, error) {
	s.mu.Lock()
	if s.inTxn {
		if res, ok := s.pending[key]; ok {
			s.mu.Unlock()
			return res, nil
		}
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fsstore: read %s: %w", key, err)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("fsstore: decode %s: %w", key, err)
	}
	return &res, nil
}

// Put stores a result under key. Inside a transaction the write is buffered
// until End; outside it commits immediately.
func (s *FSStore) Put(res *Result, key string) error {
	s.mu.Lock()
	if s.inTxn {
		s.pending[key] = res
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.commit(res, key)
}

// Begin opens a write transaction. Concurrent transactions serialize.
func (s *FSStore) Begin() {
	s.txnMu.Lock()
	s.mu.Lock()
	s.inTxn = true
	s.pending = make(map[string]*Result)
	s.mu.Unlock()
}

// End commits all buffered writes and closes the transaction.
// Each entry is written to a temp file and renamed into place, so a reader
// never observes a partially written result.
func (s *FSStore) End() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.inTxn = false
	s.mu.Unlock()

	for key, res := range pending {
		// Commit errors inside a transaction surface on the next Get.
		_ = s.commit(res, key)
	}
	s.txnMu.Unlock()
}

// Remove deletes the result stored under key, if any.
func (s *FSStore) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: remove %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) commit(res *Result, key string) error {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("fsstore: create dir for %s: %w", key, err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("fsstore: temp file for %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsstore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsstore: close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsstore: rename %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) path(key string) string {
	clean := strings.Trim(key, "/")
	return filepath.Join(s.root, filepath.FromSlash(clean)+".json")
}

// Compile-time interface check.
var _ ResultStore = (*FSStore)(nil)
