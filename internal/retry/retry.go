// Package retry implements the shared bounded-retry policy used by the
// test phase and the spec-validation phase.
package retry

import (
	"fmt"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/state"
)

type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeRetry      Outcome = "retry"
	OutcomeNeedsHuman Outcome = "needs_human"
)

// Decision is the engine's verdict on one reported attempt.
type Decision struct {
	Outcome  Outcome
	Attempt  int
	Failures []string
	// Checkpoint to raise: the post-success review gate, or the
	// needs-human gate once attempts are exhausted.
	Checkpoint model.Checkpoint
	Message    string
}

type Engine struct {
	states      *state.Manager
	maxAttempts int
}

func NewEngine(states *state.Manager) *Engine {
	return &Engine{states: states, maxAttempts: model.MaxRetryAttempts}
}

// Report feeds one outcome into the loop for kind.
//
// Success resets the counter and raises the review checkpoint for the
// kind (auto-approvable in bulk mode). Failure increments the counter;
// within the bound the caller gets the failure list back to address and
// re-submit, beyond it the loop ends one-way in needs_human. The test
// loop's needs-human gate is still bulk-resolvable ("skip and proceed,
// flag as warning"); the compliance loop's is a correctness gate and
// never is.
func (e *Engine) Report(kind model.RetryKind, success bool, failures []string) (Decision, error) {
	if !model.ValidRetryKind(kind) {
		return Decision{}, fmt.Errorf("unknown retry kind %q", kind)
	}

	if success {
		if err := e.states.ResetRetry(kind); err != nil {
			return Decision{}, err
		}
		return Decision{
			Outcome:    OutcomeSuccess,
			Checkpoint: reviewCheckpoint(kind),
			Message:    successMessage(kind),
		}, nil
	}

	attempt, err := e.states.IncrementRetry(kind)
	if err != nil {
		return Decision{}, err
	}

	if attempt <= e.maxAttempts {
		return Decision{
			Outcome:  OutcomeRetry,
			Attempt:  attempt,
			Failures: failures,
			Message: fmt.Sprintf("%s attempt %d/%d failed, address the failures and re-run",
				kind, attempt, e.maxAttempts),
		}, nil
	}

	return Decision{
		Outcome:    OutcomeNeedsHuman,
		Attempt:    attempt,
		Failures:   failures,
		Checkpoint: exhaustedCheckpoint(kind),
		Message: fmt.Sprintf("%s still failing after %d automated fix attempts",
			kind, e.maxAttempts),
	}, nil
}

func reviewCheckpoint(kind model.RetryKind) model.Checkpoint {
	if kind == model.RetryCompliance {
		return model.CheckpointValidationCommit
	}
	return model.CheckpointTestReview
}

func exhaustedCheckpoint(kind model.RetryKind) model.Checkpoint {
	if kind == model.RetryCompliance {
		return model.CheckpointComplianceFailed
	}
	return model.CheckpointTestReview
}

func successMessage(kind model.RetryKind) string {
	if kind == model.RetryCompliance {
		return "validation passed, review before committing"
	}
	return "all tests passed, review before proceeding"
}
