package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/tomoki/shuttle/internal/model"
)

const (
	queueFile = "queue.yaml"
	stateFile = "state.yaml"
)

// Store is the explicit handle to the on-disk .shuttle/ documents. Every
// component receives one; there are no package-level globals. One store,
// one writer at a time, enforced by the invocation flock and by the
// queue's single-in-flight invariant.
type Store struct {
	dir    string
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the data directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) queuePath() string {
	return filepath.Join(s.dir, queueFile)
}

func (s *Store) statePath() string {
	return filepath.Join(s.dir, stateFile)
}

// LoadQueue reads the queue document. A missing file yields the default
// empty queue. A malformed file is quarantined and the default (or the
// restored backup) is returned; corruption never blocks an invocation.
func (s *Store) LoadQueue() (model.Queue, error) {
	q := model.NewQueue()
	if err := s.loadDocument(s.queuePath(), model.FileTypeQueue, &q); err != nil {
		return model.NewQueue(), err
	}
	if q.SchemaVersion == 0 {
		q.SchemaVersion = model.CurrentSchemaVersion
		q.FileType = model.FileTypeQueue
	}
	if q.Items == nil {
		q.Items = []model.QueueItem{}
	}
	return q, nil
}

func (s *Store) SaveQueue(q model.Queue) error {
	q.SchemaVersion = model.CurrentSchemaVersion
	q.FileType = model.FileTypeQueue
	if err := atomicWrite(s.queuePath(), q); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

// LoadState reads the state document, with the same missing/malformed
// semantics as LoadQueue. The default state has bulk mode off; callers
// that need the session mode preserved must load before resetting.
func (s *Store) LoadState() (model.State, error) {
	st := model.NewState(false)
	if err := s.loadDocument(s.statePath(), model.FileTypeState, &st); err != nil {
		return model.NewState(false), err
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = model.CurrentSchemaVersion
		st.FileType = model.FileTypeState
	}
	if st.Phase == "" {
		st.Phase = model.PhaseIdle
	}
	if st.PreviousPhase == "" {
		st.PreviousPhase = model.PhaseIdle
	}
	if st.Checkpoint == "" {
		st.Checkpoint = model.CheckpointNone
	}
	return st, nil
}

func (s *Store) SaveState(st model.State) error {
	st.SchemaVersion = model.CurrentSchemaVersion
	st.FileType = model.FileTypeState
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := atomicWrite(s.statePath(), st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// DeleteState removes the state document entirely.
func (s *Store) DeleteState() error {
	if err := os.Remove(s.statePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// ArchiveQueue copies the queue document to a timestamped snapshot under
// archive/ and clears the active file. Returns the snapshot path.
func (s *Store) ArchiveQueue() (string, error) {
	archiveDir := filepath.Join(s.dir, "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	timestamp := time.Now().Format("20060102T150405")
	snapshot := filepath.Join(archiveDir,
		fmt.Sprintf("queue.%s.%s.yaml", timestamp, uuid.NewString()[:8]))

	if _, err := os.Stat(s.queuePath()); err == nil {
		if err := copyFile(s.queuePath(), snapshot); err != nil {
			return "", fmt.Errorf("copy queue snapshot: %w", err)
		}
	}

	if err := s.SaveQueue(model.NewQueue()); err != nil {
		return "", fmt.Errorf("clear queue after archive: %w", err)
	}

	s.logger.Info("archived queue", zap.String("snapshot", snapshot))
	return snapshot, nil
}

// loadDocument reads and parses one document into out. Malformed content
// triggers quarantine + backup restore; if the restored file parses, it is
// used, otherwise out keeps its caller-supplied default.
func (s *Store) loadDocument(path, fileType string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := s.parseDocument(data, fileType, out); err == nil {
		return nil
	} else {
		s.logger.Warn("malformed document, attempting recovery",
			zap.String("path", path),
			zap.Error(err))
	}

	if err := s.recoverCorrupted(path); err != nil {
		// Quarantined but not restorable: fall back to the default.
		return nil
	}

	restored, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if err := s.parseDocument(restored, fileType, out); err != nil {
		s.logger.Warn("restored backup also malformed, using default document",
			zap.String("path", path),
			zap.Error(err))
	}
	return nil
}

func (s *Store) parseDocument(data []byte, fileType string, out any) error {
	var header model.SchemaHeader
	if err := yamlv3.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if header.SchemaVersion != 0 || header.FileType != "" {
		if err := model.ValidateSchemaHeader(header, fileType); err != nil {
			return fmt.Errorf("schema header: %w", err)
		}
	}
	if err := yamlv3.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	return nil
}
