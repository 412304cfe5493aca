package queue

import (
	"path/filepath"
	"strings"
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

func deriveName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func TestAdd_ThenNextPending(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("prds/p1.md", "p1")
	require.NoError(t, err)

	next, err := m.NextPending()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "prds/p1.md", next.Path)
	assert.Equal(t, 1, next.Priority)

	_, err = m.Add("prds/p2.md", "p2")
	require.NoError(t, err)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0, stats.InProgress)
	assert.Equal(t, 2, stats.Total)
}

func TestAdd_Duplicate(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("prds/p1.md", "p1")
	require.NoError(t, err)

	_, err = m.Add("prds/p1.md", "p1")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAddBatch_SkipsDuplicates(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("prds/p1.md", "p1")
	require.NoError(t, err)

	added, dupes, err := m.AddBatch([]string{"prds/p1.md", "prds/p2.md", "prds/p3.md"}, deriveName)
	require.NoError(t, err)
	assert.Len(t, added, 2)
	assert.Equal(t, []string{"prds/p1.md"}, dupes)
}

func TestStart_SingleInFlightInvariant(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("p1", "p1")
	require.NoError(t, err)
	_, err = m.Add("p2", "p2")
	require.NoError(t, err)

	_, err = m.Start("p1")
	require.NoError(t, err)

	// Second start must fail without mutating anything.
	_, err = m.Start("p2")
	assert.ErrorIs(t, err, ErrActiveItemConflict)

	items, err := m.List()
	require.NoError(t, err)
	for _, it := range items {
		if it.Path == "p2" && it.Status != model.StatusPending {
			t.Errorf("p2 status mutated to %q by failed start", it.Status)
		}
	}

	// Re-starting the active item is idempotent.
	_, err = m.Start("p1")
	assert.NoError(t, err)
}

func TestStart_NotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteFailSkip(t *testing.T) {
	m := newTestManager(t)

	for _, p := range []string{"p1", "p2", "p3"} {
		_, err := m.Add(p, p)
		require.NoError(t, err)
	}

	_, err := m.Start("p1")
	require.NoError(t, err)
	require.NoError(t, m.Complete("p1"))

	// Completing frees the in-flight slot.
	_, err = m.Start("p2")
	require.NoError(t, err)
	require.NoError(t, m.Fail("p2", "build broke"))

	require.NoError(t, m.Skip("p3", "superseded"))

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)

	items, err := m.List()
	require.NoError(t, err)
	for _, it := range items {
		if it.Path == "p2" {
			require.NotNil(t, it.Reason)
			assert.Equal(t, "build broke", *it.Reason)
		}
	}
}

func TestFinish_NotFoundIsSoft(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Complete("missing"), ErrNotFound)
	assert.ErrorIs(t, m.Fail("missing", "r"), ErrNotFound)
	assert.ErrorIs(t, m.Skip("missing", "r"), ErrNotFound)
}

func TestRetry_TerminalBackToPending(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("p1", "p1")
	require.NoError(t, err)
	_, err = m.Start("p1")
	require.NoError(t, err)
	require.NoError(t, m.Fail("p1", "flaky"))

	require.NoError(t, m.Retry("p1"))

	next, err := m.NextPending()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "p1", next.Path)
	assert.Nil(t, next.Reason)
	assert.Nil(t, next.StartedAt)
}

func TestRetry_NonTerminalRejected(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Add("p1", "p1")
	require.NoError(t, err)
	assert.Error(t, m.Retry("p1"))
}

func TestMove_RenumbersDense(t *testing.T) {
	m := newTestManager(t)

	for _, p := range []string{"p1", "p2", "p3"} {
		_, err := m.Add(p, p)
		require.NoError(t, err)
	}

	require.NoError(t, m.Move("p3", 1))

	items, err := m.List()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "p3", items[0].Path)
	assert.Equal(t, "p1", items[1].Path)
	assert.Equal(t, "p2", items[2].Path)
	for i, it := range items {
		assert.Equal(t, i+1, it.Priority, "priority must stay dense 1..N")
	}

	next, err := m.NextPending()
	require.NoError(t, err)
	assert.Equal(t, "p3", next.Path)
}

func TestUpdateField(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("p1", "p1")
	require.NoError(t, err)
	require.NoError(t, m.UpdateField("p1", "pr_url", "https://example.test/pr/7"))

	items, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/pr/7", items[0].ExtraFields["pr_url"])
}

func TestArchive_ClearsQueue(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Add("p1", "p1")
	require.NoError(t, err)

	snapshot, err := m.Archive()
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot)

	items, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}
