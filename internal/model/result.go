package model

type ResultStatus string

const (
	ResultSuccess    ResultStatus = "success"
	ResultError      ResultStatus = "error"
	ResultCheckpoint ResultStatus = "checkpoint"
)

// ResultCheckpointEntry is one raised checkpoint in a result document.
// BulkApproved records that the gating function resolved it automatically.
type ResultCheckpointEntry struct {
	Type         Checkpoint `yaml:"type" json:"type"`
	Message      string     `yaml:"message" json:"message"`
	BulkApproved bool       `yaml:"bulk_approved" json:"bulk_approved"`
}

// Result is the structured document every verb prints on stdout. The
// external driver (human, script, or agent) reads it to decide what to
// invoke next; the core never initiates work itself.
type Result struct {
	RunID       string                  `yaml:"run_id" json:"run_id"`
	Command     string                  `yaml:"command" json:"command"`
	Status      ResultStatus            `yaml:"status" json:"status"`
	Data        map[string]any          `yaml:"data,omitempty" json:"data,omitempty"`
	Warnings    []string                `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Errors      []string                `yaml:"errors,omitempty" json:"errors,omitempty"`
	Checkpoints []ResultCheckpointEntry `yaml:"checkpoints,omitempty" json:"checkpoints,omitempty"`
	NextSteps   []string                `yaml:"next_steps,omitempty" json:"next_steps,omitempty"`
}

func NewResult(runID, command string) *Result {
	return &Result{
		RunID:   runID,
		Command: command,
		Status:  ResultSuccess,
		Data:    map[string]any{},
	}
}

func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError records an error and forces status=error. Errors win over
// checkpoints when both are present.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Status = ResultError
}

// AddCheckpoint raises a checkpoint on the result. When bulk mode covers
// the checkpoint type it is recorded as approved and the overall status
// stays success; otherwise the status becomes checkpoint (unless an error
// already claimed it).
func (r *Result) AddCheckpoint(cp Checkpoint, msg string, bulk bool) bool {
	approved := Bypassable(cp, bulk)
	r.Checkpoints = append(r.Checkpoints, ResultCheckpointEntry{
		Type:         cp,
		Message:      msg,
		BulkApproved: approved,
	})
	if !approved && r.Status != ResultError {
		r.Status = ResultCheckpoint
	}
	return approved
}

func (r *Result) AddNextStep(step string) {
	r.NextSteps = append(r.NextSteps, step)
}

// ExitCode maps the result status to the process exit code: 0 only for
// success (bulk-approved checkpoints count as success).
func (r *Result) ExitCode() int {
	if r.Status == ResultSuccess {
		return 0
	}
	return 1
}
