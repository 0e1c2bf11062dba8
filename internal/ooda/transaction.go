package ooda

import (
	"encoding/json"
	"fmt"

	"triage/internal/logging"
	"triage/internal/types"
)

// turnTransaction makes one turn all-or-nothing with respect to in-memory
// state. Begin snapshots the full investigation; Rollback restores it, so
// a cancelled turn leaves no partial evidence or memory writes behind.
// Persistence atomicity is the store's job; this guards the live state.
type turnTransaction struct {
	st       *types.InvestigationState
	snapshot []byte
	done     bool
}

func beginTurn(st *types.InvestigationState) (*turnTransaction, error) {
	snapshot, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot case %s: %w", st.CaseID, err)
	}
	return &turnTransaction{st: st, snapshot: snapshot}, nil
}

// Commit marks the turn complete; the snapshot is discarded.
func (t *turnTransaction) Commit() {
	t.done = true
}

// Rollback restores the state captured at Begin. Safe to call after
// Commit; it becomes a no-op.
func (t *turnTransaction) Rollback() {
	if t.done {
		return
	}
	var restored types.InvestigationState
	if err := json.Unmarshal(t.snapshot, &restored); err != nil {
		// The snapshot came from Marshal of the same type; this cannot
		// fail short of memory corruption.
		logging.Engine().Errorw("turn rollback failed", "case_id", t.st.CaseID, "error", err)
		return
	}
	*t.st = restored
	t.done = true
	logging.Engine().Infow("turn rolled back", "case_id", t.st.CaseID, "turn", t.st.TurnNumber)
}
