package ooda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/types"
)

func TestCaseLocksRejectSecondAcquire(t *testing.T) {
	locks := NewCaseLocks()

	release, ok := locks.TryAcquire("case-1")
	require.True(t, ok)

	_, ok = locks.TryAcquire("case-1")
	assert.False(t, ok)

	release()
	release2, ok := locks.TryAcquire("case-1")
	assert.True(t, ok)
	release2()
}

func TestCaseLocksAreIndependentAcrossCases(t *testing.T) {
	locks := NewCaseLocks()

	r1, ok := locks.TryAcquire("case-1")
	require.True(t, ok)
	defer r1()

	r2, ok := locks.TryAcquire("case-2")
	require.True(t, ok)
	defer r2()
}

func TestTurnTransactionRollbackRestoresState(t *testing.T) {
	st := types.NewInvestigationState("case-txn", time.Now())
	st.TurnNumber = 4
	st.ProblemStatement = "original"

	txn, err := beginTurn(st)
	require.NoError(t, err)

	st.TurnNumber = 5
	st.ProblemStatement = "mutated"
	st.Provided = append(st.Provided, types.EvidenceProvided{EvidenceID: "ev-1"})

	txn.Rollback()
	assert.Equal(t, 4, st.TurnNumber)
	assert.Equal(t, "original", st.ProblemStatement)
	assert.Empty(t, st.Provided)
}

func TestTurnTransactionRollbackAfterCommitIsNoop(t *testing.T) {
	st := types.NewInvestigationState("case-txn", time.Now())

	txn, err := beginTurn(st)
	require.NoError(t, err)

	st.TurnNumber = 9
	txn.Commit()
	txn.Rollback()

	assert.Equal(t, 9, st.TurnNumber)
}
