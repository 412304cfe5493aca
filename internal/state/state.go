// Package state manages the phase state machine for the active queue
// item. Every mutator persists immediately: each phase command may run as
// a separate process invocation, so state is never held only in memory.
package state

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/store"
)

var (
	ErrUnknownPhase      = errors.New("unknown phase")
	ErrBackwardPhase     = errors.New("phase transitions only move forward")
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
	ErrUnknownField      = errors.New("unknown state field")
)

type Manager struct {
	store  *store.Store
	logger *zap.Logger
}

func NewManager(s *store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: s, logger: logger}
}

func (m *Manager) Load() (model.State, error) {
	return m.store.LoadState()
}

// StartItem resets state for a new active item. BulkMode is the one field
// that survives: it is session-scoped, not item-scoped.
func (m *Manager) StartItem(item model.QueueItem) (model.State, error) {
	prev, err := m.store.LoadState()
	if err != nil {
		return model.State{}, err
	}

	st := model.NewState(prev.BulkMode)
	now := time.Now().UTC().Format(time.RFC3339)
	st.ItemPath = item.Path
	st.DerivedName = item.DerivedName
	st.CreatedAt = now

	if err := m.store.SaveState(st); err != nil {
		return model.State{}, err
	}
	m.logger.Info("state start_item",
		zap.String("path", item.Path),
		zap.Bool("bulk_mode", st.BulkMode))
	return st, nil
}

// TransitionTo moves the machine to the named phase, stamping the time
// and recording the previous phase. An unrecognized phase is an input
// error and leaves state untouched. Phases only move forward along the
// pipeline; going back requires a reset.
func (m *Manager) TransitionTo(phase model.Phase) (model.State, error) {
	if !model.ValidPhase(phase) {
		return model.State{}, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}

	st, err := m.store.LoadState()
	if err != nil {
		return model.State{}, err
	}
	if model.PhaseIndex(phase) < model.PhaseIndex(st.Phase) {
		return model.State{}, fmt.Errorf("%w: %s to %s", ErrBackwardPhase, st.Phase, phase)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	st.PreviousPhase = st.Phase
	st.Phase = phase
	st.PhaseStartedAt = &now

	if err := m.store.SaveState(st); err != nil {
		return model.State{}, err
	}
	m.logger.Info("state transition",
		zap.String("from", string(st.PreviousPhase)),
		zap.String("to", string(phase)))
	return st, nil
}

func (m *Manager) SetCheckpoint(cp model.Checkpoint) (model.State, error) {
	if !model.ValidCheckpoint(cp) || cp == model.CheckpointNone {
		return model.State{}, fmt.Errorf("%w: %q", ErrUnknownCheckpoint, cp)
	}

	st, err := m.store.LoadState()
	if err != nil {
		return model.State{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	st.Checkpoint = cp
	st.CheckpointAt = &now

	if err := m.store.SaveState(st); err != nil {
		return model.State{}, err
	}
	m.logger.Info("state checkpoint", zap.String("checkpoint", string(cp)))
	return st, nil
}

func (m *Manager) ClearCheckpoint() (model.State, error) {
	st, err := m.store.LoadState()
	if err != nil {
		return model.State{}, err
	}
	st.Checkpoint = model.CheckpointNone
	st.CheckpointAt = nil
	if err := m.store.SaveState(st); err != nil {
		return model.State{}, err
	}
	return st, nil
}

// IncrementRetry bumps the counter for kind and returns the new count.
func (m *Manager) IncrementRetry(kind model.RetryKind) (int, error) {
	if !model.ValidRetryKind(kind) {
		return 0, fmt.Errorf("unknown retry kind %q", kind)
	}
	st, err := m.store.LoadState()
	if err != nil {
		return 0, err
	}
	n := st.Retries.Get(kind) + 1
	st.Retries.Set(kind, n)
	if err := m.store.SaveState(st); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *Manager) ResetRetry(kind model.RetryKind) error {
	if !model.ValidRetryKind(kind) {
		return fmt.Errorf("unknown retry kind %q", kind)
	}
	st, err := m.store.LoadState()
	if err != nil {
		return err
	}
	st.Retries.Set(kind, 0)
	return m.store.SaveState(st)
}

func (m *Manager) SetBranch(branch string) error {
	st, err := m.store.LoadState()
	if err != nil {
		return err
	}
	st.Branch = branch
	return m.store.SaveState(st)
}

func (m *Manager) AddWarning(msg string) error {
	st, err := m.store.LoadState()
	if err != nil {
		return err
	}
	st.Warnings = append(st.Warnings, msg)
	return m.store.SaveState(st)
}

func (m *Manager) AddError(msg string) error {
	st, err := m.store.LoadState()
	if err != nil {
		return err
	}
	st.Errors = append(st.Errors, msg)
	return m.store.SaveState(st)
}

// Complete marks the pipeline finished for the active item.
func (m *Manager) Complete() (model.State, error) {
	st, err := m.store.LoadState()
	if err != nil {
		return model.State{}, err
	}
	st.PreviousPhase = st.Phase
	st.Phase = model.PhaseComplete
	st.Checkpoint = model.CheckpointNone
	st.CheckpointAt = nil
	if err := m.store.SaveState(st); err != nil {
		return model.State{}, err
	}
	return st, nil
}

// Reset returns state to defaults with the same mode-preservation rule as
// StartItem.
func (m *Manager) Reset() (model.State, error) {
	prev, err := m.store.LoadState()
	if err != nil {
		return model.State{}, err
	}
	st := model.NewState(prev.BulkMode)
	st.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := m.store.SaveState(st); err != nil {
		return model.State{}, err
	}
	m.logger.Info("state reset", zap.Bool("bulk_mode", st.BulkMode))
	return st, nil
}

// Delete removes the state document outright.
func (m *Manager) Delete() error {
	return m.store.DeleteState()
}

// Get reads a single field by name for `state get`.
func (m *Manager) Get(field string) (string, error) {
	st, err := m.store.LoadState()
	if err != nil {
		return "", err
	}
	switch field {
	case "item_path":
		return st.ItemPath, nil
	case "derived_name":
		return st.DerivedName, nil
	case "branch":
		return st.Branch, nil
	case "phase":
		return string(st.Phase), nil
	case "previous_phase":
		return string(st.PreviousPhase), nil
	case "checkpoint":
		return string(st.Checkpoint), nil
	case "bulk_mode":
		return fmt.Sprintf("%t", st.BulkMode), nil
	case "retries.test":
		return fmt.Sprintf("%d", st.Retries.Test), nil
	case "retries.compliance":
		return fmt.Sprintf("%d", st.Retries.Compliance), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// Set writes one of the whitelisted mutable fields for `state set`.
// Phase and checkpoint have their own verbs with validation, so they are
// deliberately not settable here.
func (m *Manager) Set(field, value string) error {
	st, err := m.store.LoadState()
	if err != nil {
		return err
	}
	switch field {
	case "bulk_mode":
		switch value {
		case "true":
			st.BulkMode = true
		case "false":
			st.BulkMode = false
		default:
			return fmt.Errorf("bulk_mode must be true or false, got %q", value)
		}
	case "branch":
		st.Branch = value
	case "item_path":
		st.ItemPath = value
	case "derived_name":
		st.DerivedName = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return m.store.SaveState(st)
}
