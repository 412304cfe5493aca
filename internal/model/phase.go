package model

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhasePrepare        Phase = "prepare"
	PhaseProposal       Phase = "proposal"
	PhaseProposalReview Phase = "proposal_review"
	PhasePrebuild       Phase = "prebuild"
	PhaseBuild          Phase = "build"
	PhaseTest           Phase = "test"
	PhaseValidate       Phase = "validate"
	PhaseFinalize       Phase = "finalize"
	PhaseComplete       Phase = "complete"
)

// PhaseOrder is the fixed pipeline. Phases only advance along this list;
// moving backward requires an explicit state reset.
var PhaseOrder = []Phase{
	PhaseIdle,
	PhasePrepare,
	PhaseProposal,
	PhaseProposalReview,
	PhasePrebuild,
	PhaseBuild,
	PhaseTest,
	PhaseValidate,
	PhaseFinalize,
	PhaseComplete,
}

var phaseIndex = func() map[Phase]int {
	m := make(map[Phase]int, len(PhaseOrder))
	for i, p := range PhaseOrder {
		m[p] = i
	}
	return m
}()

func ValidPhase(p Phase) bool {
	_, ok := phaseIndex[p]
	return ok
}

// PhaseIndex returns the position of p in the pipeline, or -1 if unknown.
func PhaseIndex(p Phase) int {
	i, ok := phaseIndex[p]
	if !ok {
		return -1
	}
	return i
}
