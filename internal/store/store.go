// Package store persists investigation state. The engine only sees the
// Store interface; SQLite backs the real deployment and the in-memory
// implementation serves tests and ephemeral sessions.
package store

import (
	"context"
	"errors"

	"triage/internal/types"
)

// ErrNotFound is returned when no state exists for a case ID.
var ErrNotFound = errors.New("case not found")

// Store is the case-scoped persistence collaborator. Save must be atomic:
// a reader never observes a partially written state.
type Store interface {
	Load(ctx context.Context, caseID string) (*types.InvestigationState, error)
	Save(ctx context.Context, st *types.InvestigationState) error
	Delete(ctx context.Context, caseID string) error
	ListCaseIDs(ctx context.Context) ([]string, error)
	Close() error
}
