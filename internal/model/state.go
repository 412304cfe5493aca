package model

// RetryKind names the two bounded fix-and-retry loops.
type RetryKind string

const (
	RetryTest       RetryKind = "test"
	RetryCompliance RetryKind = "compliance"
)

// MaxRetryAttempts bounds both loops. Crossing it is a one-way transition
// to a needs-human outcome.
const MaxRetryAttempts = 2

func ValidRetryKind(k RetryKind) bool {
	return k == RetryTest || k == RetryCompliance
}

// RetryCounters tracks attempts for the active item. Counters reset on
// success and on starting a new item, never on mode changes.
type RetryCounters struct {
	Test       int `yaml:"test"`
	Compliance int `yaml:"compliance"`
}

func (r *RetryCounters) Get(kind RetryKind) int {
	if kind == RetryCompliance {
		return r.Compliance
	}
	return r.Test
}

func (r *RetryCounters) Set(kind RetryKind, n int) {
	if kind == RetryCompliance {
		r.Compliance = n
		return
	}
	r.Test = n
}

// State is the singleton progress document for the active queue item
// (.shuttle/state.yaml). BulkMode is session-scoped: it is the one field
// preserved across StartItem and Reset.
type State struct {
	SchemaVersion  int           `yaml:"schema_version"`
	FileType       string        `yaml:"file_type"`
	ItemPath       string        `yaml:"item_path"`
	DerivedName    string        `yaml:"derived_name"`
	Branch         string        `yaml:"branch"`
	Phase          Phase         `yaml:"phase"`
	PreviousPhase  Phase         `yaml:"previous_phase"`
	PhaseStartedAt *string       `yaml:"phase_started_at,omitempty"`
	Checkpoint     Checkpoint    `yaml:"checkpoint"`
	CheckpointAt   *string       `yaml:"checkpoint_at,omitempty"`
	Retries        RetryCounters `yaml:"retries"`
	BulkMode       bool          `yaml:"bulk_mode"`
	Errors         []string      `yaml:"errors"`
	Warnings       []string      `yaml:"warnings"`
	CreatedAt      string        `yaml:"created_at"`
	UpdatedAt      string        `yaml:"updated_at"`
}

// NewState returns the defined default state document. bulk carries the
// session mode through resets.
func NewState(bulk bool) State {
	return State{
		SchemaVersion: CurrentSchemaVersion,
		FileType:      FileTypeState,
		Phase:         PhaseIdle,
		PreviousPhase: PhaseIdle,
		Checkpoint:    CheckpointNone,
		BulkMode:      bulk,
		Errors:        []string{},
		Warnings:      []string{},
	}
}
