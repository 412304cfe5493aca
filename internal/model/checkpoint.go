package model

type Checkpoint string

const (
	CheckpointNone                  Checkpoint = "none"
	CheckpointAwaitingClarification Checkpoint = "awaiting_clarification"
	CheckpointProposalApproval      Checkpoint = "awaiting_proposal_approval"
	CheckpointValidationCommit      Checkpoint = "awaiting_validation_commit"
	CheckpointTestReview            Checkpoint = "awaiting_test_review"
	CheckpointComplianceFailed      Checkpoint = "spec_compliance_failed_review"
	CheckpointAwaitingMerge         Checkpoint = "awaiting_merge"
)

// CheckpointClass partitions checkpoints by how they may be resolved.
// Conditional checkpoints are convenience gates and may be auto-approved
// in bulk mode. Error checkpoints are correctness gates and always need a
// human, in any mode. Action checkpoints guard irreversible operations
// (merge) and likewise have no bulk bypass.
type CheckpointClass string

const (
	ClassConditional CheckpointClass = "conditional"
	ClassError       CheckpointClass = "error"
	ClassAction      CheckpointClass = "action"
)

type checkpointSpec struct {
	Class            CheckpointClass
	BypassableInBulk bool
}

// checkpointTable is the single source of truth for checkpoint gating.
// Every call site consults Bypassable instead of re-deriving the class.
var checkpointTable = map[Checkpoint]checkpointSpec{
	CheckpointAwaitingClarification: {ClassError, false},
	CheckpointProposalApproval:      {ClassConditional, true},
	CheckpointValidationCommit:      {ClassConditional, true},
	CheckpointTestReview:            {ClassConditional, true},
	CheckpointComplianceFailed:      {ClassError, false},
	CheckpointAwaitingMerge:         {ClassAction, false},
}

func ValidCheckpoint(c Checkpoint) bool {
	if c == CheckpointNone {
		return true
	}
	_, ok := checkpointTable[c]
	return ok
}

// ClassOf returns the gating class of a checkpoint. CheckpointNone has no class.
func ClassOf(c Checkpoint) (CheckpointClass, bool) {
	spec, ok := checkpointTable[c]
	return spec.Class, ok
}

// Bypassable reports whether the checkpoint may be auto-approved when
// bulk mode is active. With bulk off nothing is bypassable.
func Bypassable(c Checkpoint, bulk bool) bool {
	if !bulk {
		return false
	}
	spec, ok := checkpointTable[c]
	return ok && spec.BypassableInBulk
}
