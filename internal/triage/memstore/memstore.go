// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

// DefaultLimit is the number of run records kept when New is given zero.
const DefaultLimit = 10000

// Store holds run records in memory. Suitable for dev/testing. The oldest
// record is dropped once limit is reached.
type Store struct {
	mu      sync.RWMutex
	limit   int
	records map[string]*triage.RunRecord // run ID -> record
	order   []string                     // insertion order, oldest first
}

// New initializes a new in-memory Store keeping at most limit records.
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit:   limit,
		records: make(map[string]*triage.RunRecord),
	}
}

// Get retrieves a run record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the run record.
func (s *Store) Put(_ context.Context, r *triage.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	if _, exists := s.records[r.ID]; !exists {
		if len(s.order) >= s.limit {
			delete(s.records, s.order[0])
			s.order = s.order[1:]
		}
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = &cp
	return nil
}

// Recent returns copies of the newest limit records, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]*triage.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*triage.RunRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.records[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}
