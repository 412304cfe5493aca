package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// quarantine moves a corrupt document out of the way so a fresh default
// can take its place. The original bytes are preserved for inspection.
func (s *Store) quarantine(filePath string) error {
	quarantineDir := filepath.Join(s.dir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405")
	quarantinePath := filepath.Join(quarantineDir, fmt.Sprintf("%s.%s.corrupt", baseName, timestamp))

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}

	s.logger.Warn("quarantined corrupted file",
		zap.String("path", filePath),
		zap.String("quarantine", quarantinePath))
	return nil
}

// restoreFromBackup copies the .bak sibling back over filePath, provided
// the backup itself still parses.
func (s *Store) restoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := validateYAML(content); err != nil {
		return fmt.Errorf("backup YAML is also corrupted: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}

	s.logger.Info("restored from backup",
		zap.String("backup", bakPath),
		zap.String("path", filePath))
	return nil
}

// recoverCorrupted quarantines a malformed document and tries the backup.
// The caller falls back to the default document if this returns an error;
// availability of a fresh run wins over blocking on corrupt state.
func (s *Store) recoverCorrupted(filePath string) error {
	if err := s.quarantine(filePath); err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}
	if err := s.restoreFromBackup(filePath); err != nil {
		s.logger.Warn("backup restore failed, falling back to default document",
			zap.String("path", filePath),
			zap.Error(err))
		return err
	}
	return nil
}
