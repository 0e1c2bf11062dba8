package ooda

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// CaseLocks enforces at-most-one-concurrent-turn-per-case. Turns for
// different cases proceed in parallel; a second turn for the same case is
// rejected rather than queued, since replies to a stale prompt are
// worthless once the next one is being processed.
type CaseLocks struct {
	mu    sync.Mutex
	cases map[string]*semaphore.Weighted
}

// NewCaseLocks creates an empty lock table.
func NewCaseLocks() *CaseLocks {
	return &CaseLocks{cases: make(map[string]*semaphore.Weighted)}
}

// TryAcquire takes the lease for caseID without blocking. It returns a
// release function and true, or nil and false when a turn is already in
// flight for the case.
func (l *CaseLocks) TryAcquire(caseID string) (func(), bool) {
	l.mu.Lock()
	sem, ok := l.cases[caseID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.cases[caseID] = sem
	}
	l.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}
