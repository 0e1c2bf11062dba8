package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"triage/internal/types"
)

// MemStore is the in-memory Store used by tests and ephemeral sessions.
// States are stored as serialized snapshots so callers never share
// mutable memory with the store.
type MemStore struct {
	mu    sync.RWMutex
	cases map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{cases: make(map[string][]byte)}
}

func (s *MemStore) Load(ctx context.Context, caseID string) (*types.InvestigationState, error) {
	s.mu.RLock()
	raw, ok := s.cases[caseID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}

	var st types.InvestigationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("corrupt state for case %s: %w", caseID, err)
	}
	return &st, nil
}

func (s *MemStore) Save(ctx context.Context, st *types.InvestigationState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal case %s: %w", st.CaseID, err)
	}

	s.mu.Lock()
	s.cases[st.CaseID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(ctx context.Context, caseID string) error {
	s.mu.Lock()
	delete(s.cases, caseID)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) ListCaseIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.cases))
	for id := range s.cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemStore) Close() error { return nil }
