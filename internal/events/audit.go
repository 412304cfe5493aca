// Package events provides the append-only audit trail of queue and
// phase activity (.shuttle/logs/audit.jsonl).
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultMaxLogSize caps the active log before rotation (10MB).
	DefaultMaxLogSize = 10 * 1024 * 1024
	logExtension      = ".jsonl"
	archiveDir        = "archive"
)

// Well-known event types.
const (
	EventPhase      = "phase_completed"
	EventCheckpoint = "checkpoint_raised"
	EventQueue      = "queue_mutation"
	EventFinalize   = "finalize_stage"
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	RunID     string         `json:"run_id,omitempty"`
	ItemPath  string         `json:"item_path,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger appends JSONL entries with size-based rotation. Failure to
// audit is reported to the caller but callers treat it as non-fatal.
type Logger struct {
	file        *os.File
	currentSize int64
	maxSize     int64
	logPath     string
}

func NewLogger(logPath string, maxSize int64) (*Logger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	l := &Logger{logPath: logPath, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Log appends one entry and syncs it to disk.
func (l *Logger) Log(eventType, runID, itemPath, phase string, details map[string]any) error {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RunID:     runID,
		ItemPath:  itemPath,
		Phase:     phase,
		Details:   details,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}

	dir := filepath.Join(filepath.Dir(l.logPath), archiveDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	base := filepath.Base(l.logPath)
	name := fmt.Sprintf("%s.%s%s",
		base[:len(base)-len(logExtension)],
		time.Now().Format("20060102_150405"),
		logExtension)
	if err := os.Rename(l.logPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("archive audit log: %w", err)
	}

	return l.open()
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}
