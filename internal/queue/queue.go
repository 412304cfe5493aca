// Package queue implements the persistent work queue: CRUD and status
// transitions over items, with a single-in-flight invariant.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/store"
)

var (
	// ErrNotFound is the soft failure for path-keyed operations.
	ErrNotFound = errors.New("queue item not found")
	// ErrActiveItemConflict is returned by Start while another item is
	// in_progress. The queue is left untouched.
	ErrActiveItemConflict = errors.New("another item is already in_progress")
	// ErrDuplicate is returned by Add for an already-queued path.
	ErrDuplicate = errors.New("item already queued")
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

// Add appends a pending item for path. Duplicate paths are rejected with
// ErrDuplicate regardless of the existing item's status.
func (m *Manager) Add(path, derivedName string) (model.QueueItem, error) {
	q, err := m.store.LoadQueue()
	if err != nil {
		return model.QueueItem{}, err
	}

	if q.Find(path) != nil {
		return model.QueueItem{}, fmt.Errorf("%w: %s", ErrDuplicate, path)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	item := model.QueueItem{
		Path:        path,
		DerivedName: derivedName,
		Status:      model.StatusPending,
		Priority:    len(q.Items) + 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.Items = append(q.Items, item)
	renumber(&q)

	if err := m.store.SaveQueue(q); err != nil {
		return model.QueueItem{}, err
	}
	m.logger.Info("queue add", zap.String("path", path), zap.String("derived_name", derivedName))
	return item, nil
}

// AddBatch adds many paths in order, skipping duplicates. Returns the
// added items and the duplicate paths.
func (m *Manager) AddBatch(paths []string, deriveName func(string) string) ([]model.QueueItem, []string, error) {
	var added []model.QueueItem
	var duplicates []string
	for _, p := range paths {
		item, err := m.Add(p, deriveName(p))
		if errors.Is(err, ErrDuplicate) {
			duplicates = append(duplicates, p)
			continue
		}
		if err != nil {
			return added, duplicates, err
		}
		added = append(added, item)
	}
	return added, duplicates, nil
}

// NextPending returns the lowest-priority pending item, or nil.
func (m *Manager) NextPending() (*model.QueueItem, error) {
	q, err := m.store.LoadQueue()
	if err != nil {
		return nil, err
	}
	return nextPending(&q), nil
}

func nextPending(q *model.Queue) *model.QueueItem {
	var best *model.QueueItem
	for i := range q.Items {
		if q.Items[i].Status != model.StatusPending {
			continue
		}
		if best == nil || q.Items[i].Priority < best.Priority {
			best = &q.Items[i]
		}
	}
	return best
}

// Start transitions an item to in_progress. This is the one operation
// with a cross-item invariant check: it fails without mutating anything
// if any other item is already in_progress.
func (m *Manager) Start(path string) (model.QueueItem, error) {
	q, err := m.store.LoadQueue()
	if err != nil {
		return model.QueueItem{}, err
	}

	if active := q.Active(); active != nil && active.Path != path {
		return model.QueueItem{}, fmt.Errorf("%w (active: %s)", ErrActiveItemConflict, active.Path)
	}

	item := q.Find(path)
	if item == nil {
		return model.QueueItem{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if item.Status == model.StatusInProgress {
		return *item, nil // idempotent re-start of the same item
	}
	if err := model.ValidateItemTransition(item.Status, model.StatusInProgress); err != nil {
		return model.QueueItem{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	item.Status = model.StatusInProgress
	item.StartedAt = &now
	item.UpdatedAt = now

	if err := m.store.SaveQueue(q); err != nil {
		return model.QueueItem{}, err
	}
	m.logger.Info("queue start", zap.String("path", path))
	return *item, nil
}

// Complete marks an item completed.
func (m *Manager) Complete(path string) error {
	return m.finish(path, model.StatusCompleted, "")
}

// Fail marks an item failed with a reason.
func (m *Manager) Fail(path, reason string) error {
	return m.finish(path, model.StatusFailed, reason)
}

// Skip marks an item skipped with a reason.
func (m *Manager) Skip(path, reason string) error {
	return m.finish(path, model.StatusSkipped, reason)
}

func (m *Manager) finish(path string, status model.Status, reason string) error {
	q, err := m.store.LoadQueue()
	if err != nil {
		return err
	}
	item := q.Find(path)
	if item == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err := model.ValidateItemTransition(item.Status, status); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	item.Status = status
	item.UpdatedAt = now
	if status == model.StatusCompleted {
		item.CompletedAt = &now
	}
	if reason != "" {
		item.Reason = &reason
	}

	if err := m.store.SaveQueue(q); err != nil {
		return err
	}
	m.logger.Info("queue transition",
		zap.String("path", path),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	return nil
}

// Retry moves a terminal item back to pending. Terminal states are never
// mutated in place into anything else; this is the one legal way out.
func (m *Manager) Retry(path string) error {
	q, err := m.store.LoadQueue()
	if err != nil {
		return err
	}
	item := q.Find(path)
	if item == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !model.IsTerminal(item.Status) {
		return fmt.Errorf("cannot retry item in status %q", item.Status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	item.Status = model.StatusPending
	item.Reason = nil
	item.StartedAt = nil
	item.CompletedAt = nil
	item.UpdatedAt = now
	renumber(&q)

	if err := m.store.SaveQueue(q); err != nil {
		return err
	}
	m.logger.Info("queue retry", zap.String("path", path))
	return nil
}

// Move places an item at the given 1-based position and renumbers the
// rest densely.
func (m *Manager) Move(path string, position int) error {
	q, err := m.store.LoadQueue()
	if err != nil {
		return err
	}
	if q.Find(path) == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if position < 1 {
		position = 1
	}
	if position > len(q.Items) {
		position = len(q.Items)
	}

	sortByPriority(&q)
	idx := 0
	for i := range q.Items {
		if q.Items[i].Path == path {
			idx = i
			break
		}
	}
	item := q.Items[idx]
	q.Items = append(q.Items[:idx], q.Items[idx+1:]...)
	rest := make([]model.QueueItem, 0, len(q.Items)+1)
	rest = append(rest, q.Items[:position-1]...)
	rest = append(rest, item)
	rest = append(rest, q.Items[position-1:]...)
	q.Items = rest
	for i := range q.Items {
		q.Items[i].Priority = i + 1
	}
	q.Items[position-1].UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := m.store.SaveQueue(q); err != nil {
		return err
	}
	m.logger.Info("queue move", zap.String("path", path), zap.Int("position", position))
	return nil
}

// UpdateField sets an arbitrary key in an item's extra_fields.
func (m *Manager) UpdateField(path, key, value string) error {
	q, err := m.store.LoadQueue()
	if err != nil {
		return err
	}
	item := q.Find(path)
	if item == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if item.ExtraFields == nil {
		item.ExtraFields = map[string]string{}
	}
	item.ExtraFields[key] = value
	item.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return m.store.SaveQueue(q)
}

// List returns all items in priority order.
func (m *Manager) List() ([]model.QueueItem, error) {
	q, err := m.store.LoadQueue()
	if err != nil {
		return nil, err
	}
	sortByPriority(&q)
	return q.Items, nil
}

// Stats counts items per status.
func (m *Manager) Stats() (model.Stats, error) {
	q, err := m.store.LoadQueue()
	if err != nil {
		return model.Stats{}, err
	}
	return q.Stats(), nil
}

// Archive snapshots the queue to a timestamped file and clears it.
func (m *Manager) Archive() (string, error) {
	return m.store.ArchiveQueue()
}

func sortByPriority(q *model.Queue) {
	sort.SliceStable(q.Items, func(i, j int) bool {
		return q.Items[i].Priority < q.Items[j].Priority
	})
}

// renumber keeps priorities a dense 1..N sequence after every mutation.
func renumber(q *model.Queue) {
	sortByPriority(q)
	for i := range q.Items {
		q.Items[i].Priority = i + 1
	}
}
