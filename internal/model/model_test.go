package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yamlv3 "gopkg.in/yaml.v3"
)

func TestQueueStats(t *testing.T) {
	q := NewQueue()
	q.Items = []QueueItem{
		{Path: "p1", Status: StatusPending},
		{Path: "p2", Status: StatusPending},
		{Path: "p3", Status: StatusInProgress},
		{Path: "p4", Status: StatusCompleted},
		{Path: "p5", Status: StatusFailed},
	}

	s := q.Stats()
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, 1, s.InProgress)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Skipped)
	assert.Equal(t, 5, s.Total)
}

func TestQueueActive(t *testing.T) {
	q := NewQueue()
	if q.Active() != nil {
		t.Error("empty queue should have no active item")
	}

	q.Items = []QueueItem{
		{Path: "p1", Status: StatusCompleted},
		{Path: "p2", Status: StatusInProgress},
	}
	active := q.Active()
	require.NotNil(t, active)
	assert.Equal(t, "p2", active.Path)
}

func TestResultCheckpointGating(t *testing.T) {
	r := NewResult("run-1", "proposal")

	// Conditional checkpoint under bulk: approved, status stays success.
	approved := r.AddCheckpoint(CheckpointProposalApproval, "review the proposal", true)
	assert.True(t, approved)
	assert.Equal(t, ResultSuccess, r.Status)
	assert.Equal(t, 0, r.ExitCode())

	// Error-class checkpoint: never approved, even under bulk.
	approved = r.AddCheckpoint(CheckpointAwaitingClarification, "PRD has gaps", true)
	assert.False(t, approved)
	assert.Equal(t, ResultCheckpoint, r.Status)
	assert.Equal(t, 1, r.ExitCode())
}

func TestResultErrorWinsOverCheckpoint(t *testing.T) {
	r := NewResult("run-2", "prepare")
	r.AddError("file not found")
	r.AddCheckpoint(CheckpointProposalApproval, "irrelevant", false)
	assert.Equal(t, ResultError, r.Status)
}

func TestStateRoundTrip(t *testing.T) {
	st := NewState(true)
	st.ItemPath = "prds/feature.md"
	st.Phase = PhaseBuild
	st.Retries.Test = 1

	data, err := yamlv3.Marshal(st)
	require.NoError(t, err)

	var got State
	require.NoError(t, yamlv3.Unmarshal(data, &got))
	assert.Equal(t, st.ItemPath, got.ItemPath)
	assert.Equal(t, PhaseBuild, got.Phase)
	assert.Equal(t, 1, got.Retries.Test)
	assert.True(t, got.BulkMode)
}

func TestValidateSchemaHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   SchemaHeader
		expected string
		wantErr  bool
	}{
		{"valid queue", SchemaHeader{1, FileTypeQueue}, FileTypeQueue, false},
		{"valid state no expectation", SchemaHeader{1, FileTypeState}, "", false},
		{"zero version", SchemaHeader{0, FileTypeQueue}, "", true},
		{"future version", SchemaHeader{CurrentSchemaVersion + 1, FileTypeQueue}, "", true},
		{"missing file type", SchemaHeader{1, ""}, "", true},
		{"unknown file type", SchemaHeader{1, "ledger"}, "", true},
		{"mismatch", SchemaHeader{1, FileTypeState}, FileTypeQueue, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaHeader(tt.header, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchemaHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
