package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(store.New(t.TempDir(), nil), nil)
}

func TestStartItem_PreservesBulkMode(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("bulk_mode", "true"))
	_, err := m.TransitionTo(model.PhaseBuild)
	require.NoError(t, err)
	_, err = m.IncrementRetry(model.RetryTest)
	require.NoError(t, err)

	st, err := m.StartItem(model.QueueItem{Path: "prds/p1.md", DerivedName: "p1"})
	require.NoError(t, err)

	assert.True(t, st.BulkMode, "bulk_mode must survive StartItem")
	assert.Equal(t, model.PhaseIdle, st.Phase)
	assert.Equal(t, 0, st.Retries.Test)
	assert.Equal(t, model.CheckpointNone, st.Checkpoint)
	assert.Equal(t, "prds/p1.md", st.ItemPath)
}

func TestReset_PreservesBulkModeOnly(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("bulk_mode", "true"))
	_, err := m.StartItem(model.QueueItem{Path: "p1", DerivedName: "p1"})
	require.NoError(t, err)
	_, err = m.TransitionTo(model.PhaseTest)
	require.NoError(t, err)
	_, err = m.SetCheckpoint(model.CheckpointTestReview)
	require.NoError(t, err)

	st, err := m.Reset()
	require.NoError(t, err)
	assert.True(t, st.BulkMode)
	assert.Empty(t, st.ItemPath)
	assert.Equal(t, model.PhaseIdle, st.Phase)
	assert.Equal(t, model.CheckpointNone, st.Checkpoint)
}

func TestTransitionTo_RecordsPreviousPhase(t *testing.T) {
	m := newTestManager(t)

	st, err := m.TransitionTo(model.PhaseBuild)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseBuild, st.Phase)
	assert.Equal(t, model.PhaseIdle, st.PreviousPhase)
	require.NotNil(t, st.PhaseStartedAt)

	// Transitioning to the same phase twice: both fields read build.
	st, err = m.TransitionTo(model.PhaseBuild)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseBuild, st.Phase)
	assert.Equal(t, model.PhaseBuild, st.PreviousPhase)
}

func TestTransitionTo_RejectsBackwardMoves(t *testing.T) {
	m := newTestManager(t)

	_, err := m.TransitionTo(model.PhaseValidate)
	require.NoError(t, err)

	_, err = m.TransitionTo(model.PhaseBuild)
	assert.ErrorIs(t, err, ErrBackwardPhase)

	st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseValidate, st.Phase, "rejected transition must not persist")

	// A reset is the sanctioned way back to the start of the pipeline.
	_, err = m.Reset()
	require.NoError(t, err)
	_, err = m.TransitionTo(model.PhaseBuild)
	require.NoError(t, err)
}

func TestTransitionTo_UnknownPhaseLeavesStateUntouched(t *testing.T) {
	m := newTestManager(t)

	_, err := m.TransitionTo(model.PhaseTest)
	require.NoError(t, err)

	_, err = m.TransitionTo(model.Phase("deploy"))
	assert.ErrorIs(t, err, ErrUnknownPhase)

	st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseTest, st.Phase)
}

func TestCheckpointSetAndClear(t *testing.T) {
	m := newTestManager(t)

	st, err := m.SetCheckpoint(model.CheckpointAwaitingMerge)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointAwaitingMerge, st.Checkpoint)
	require.NotNil(t, st.CheckpointAt)

	_, err = m.SetCheckpoint(model.Checkpoint("awaiting_coffee"))
	assert.ErrorIs(t, err, ErrUnknownCheckpoint)

	st, err = m.ClearCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointNone, st.Checkpoint)
	assert.Nil(t, st.CheckpointAt)
}

func TestRetryCounters(t *testing.T) {
	m := newTestManager(t)

	n, err := m.IncrementRetry(model.RetryTest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.IncrementRetry(model.RetryTest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.IncrementRetry(model.RetryCompliance)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "kinds must count independently")

	require.NoError(t, m.ResetRetry(model.RetryTest))
	st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Retries.Test)
	assert.Equal(t, 1, st.Retries.Compliance)

	_, err = m.IncrementRetry(model.RetryKind("deploy"))
	assert.Error(t, err)
}

func TestGetSet(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("branch", "change/login"))
	got, err := m.Get("branch")
	require.NoError(t, err)
	assert.Equal(t, "change/login", got)

	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.Error(t, m.Set("phase", "build"), "phase must go through transition")
	assert.Error(t, m.Set("bulk_mode", "maybe"))
}

func TestComplete(t *testing.T) {
	m := newTestManager(t)

	_, err := m.TransitionTo(model.PhaseFinalize)
	require.NoError(t, err)
	_, err = m.SetCheckpoint(model.CheckpointAwaitingMerge)
	require.NoError(t, err)

	st, err := m.Complete()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, st.Phase)
	assert.Equal(t, model.PhaseFinalize, st.PreviousPhase)
	assert.Equal(t, model.CheckpointNone, st.Checkpoint)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)

	_, err := m.TransitionTo(model.PhaseBuild)
	require.NoError(t, err)
	require.NoError(t, m.Delete())

	st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, st.Phase)
}
