package store

import "sync"

// MemStore is a thread-safe in-memory result store, primarily for tests.
// Begin/End serialize writers the same way FSStore transactions do.
type MemStore struct {
	txnMu   sync.Mutex
	mu      sync.Mutex
	results map[string]*Result
}

// NewMemStore creates a new in-memory result store.
func NewMemStore() *MemStore {
	return &MemStore{
		results: make(map[string]*Result),
	}
}

func (s *MemStore) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[key]
	return ok
}

func (s *MemStore) Get(key string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.results[key]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func (s *MemStore) Put(res *Result, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = res
	return nil
}

// Begin serializes transactions. MemStore writes are already atomic per
// entry, so there is nothing to buffer.
func (s *MemStore) Begin() { s.txnMu.Lock() }

func (s *MemStore) End() { s.txnMu.Unlock() }

// Keys returns all stored keys (for tests).
func (s *MemStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.results))
	for k := range s.results {
		keys = append(keys, k)
	}
	return keys
}

// Compile-time interface check.
var _ ResultStore = (*MemStore)(nil)
