package decisionstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveDecisionUpserts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := domain.PRDecision{
		PRNumber:       7,
		Action:         domain.ActionWait,
		Reason:         "CI checks still pending",
		Timestamp:      time.Now().UTC(),
		WaitConditions: []string{"CI checks must complete"},
	}
	require.NoError(t, store.SaveDecision(ctx, first))

	got, err := store.Decision(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionWait, got.Action)
	assert.Equal(t, []string{"CI checks must complete"}, got.WaitConditions)

	second := first
	second.Action = domain.ActionMerge
	second.Reason = "all CI checks passed"
	second.WaitConditions = nil
	require.NoError(t, store.SaveDecision(ctx, second))

	got, err = store.Decision(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionMerge, got.Action, "newer decision replaces the prior one")
	assert.Empty(t, got.WaitConditions)
}

func TestDecisionNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.Decision(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveAndListRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"run-a", "run-b"} {
		require.NoError(t, store.SaveRun(ctx, domain.RunResult{
			ID:        id,
			Status:    domain.RunSuccess,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Duration:  1500 * time.Millisecond,
			AgentResults: []domain.AgentRunResult{
				{AgentID: "writer", Status: domain.RunSuccess},
			},
			Errors: []string{},
		}))
	}

	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID, "newest first")
	assert.Equal(t, "run-a", runs[1].ID)
	require.Len(t, runs[0].AgentResults, 1)
	assert.Equal(t, "writer", runs[0].AgentResults[0].AgentID)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
}
