package numerator

import (
	"context"
	"sync"

	corenumerator "optiledger/internal/core/numerator"
)

// MemoryStore is a process-local Counter Store for tests and single-node dev runs.
// It holds the authoritative records itself; it is not a cache in front of another store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*corenumerator.Record

	// FailWith, when set, is returned by every operation (simulates an outage).
	FailWith error
}

// Ensure compile-time interface compliance.
var _ corenumerator.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*corenumerator.Record)}
}

// Get implements corenumerator.Store.
func (s *MemoryStore) Get(ctx context.Context, key corenumerator.Key) (*corenumerator.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	rec, ok := s.records[key.String()]
	if !ok {
		return nil, corenumerator.ErrCounterNotFound
	}
	return rec.Clone(), nil
}

// Put implements corenumerator.Store.
func (s *MemoryStore) Put(ctx context.Context, key corenumerator.Key, rec *corenumerator.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	next := rec.Clone()
	if existing, ok := s.records[key.String()]; ok {
		next.CreatedAt = existing.CreatedAt
	}
	s.records[key.String()] = next
	return nil
}

// CompareAndSwap implements corenumerator.Store.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, key corenumerator.Key, expected int64, rec *corenumerator.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return false, s.FailWith
	}
	existing, ok := s.records[key.String()]
	switch {
	case !ok && expected == 0:
		s.records[key.String()] = rec.Clone()
		return true, nil
	case !ok:
		return false, nil
	case existing.Count != expected:
		return false, nil
	}
	next := rec.Clone()
	next.CreatedAt = existing.CreatedAt
	s.records[key.String()] = next
	return true, nil
}

// Snapshot copies every record. Together with Restore it lets a test transaction
// manager roll the store back.
func (s *MemoryStore) Snapshot() map[string]*corenumerator.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(map[string]*corenumerator.Record, len(s.records))
	for k, rec := range s.records {
		snap[k] = rec.Clone()
	}
	return snap
}

// Restore replaces the store contents with a snapshot.
func (s *MemoryStore) Restore(snap map[string]*corenumerator.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*corenumerator.Record, len(snap))
	for k, rec := range snap {
		s.records[k] = rec.Clone()
	}
}

// Len returns the number of stored counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
