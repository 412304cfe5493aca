// Package setup handles shuttle project initialization.
package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tomoki/shuttle/internal/config"
	"github.com/tomoki/shuttle/internal/model"
)

// Run initializes the .shuttle/ data directory and the project's
// working directories. projectName overrides the auto-detected name
// (defaults to the directory basename if empty). Running against an
// already-initialized project is an error.
func Run(projectDir, projectName string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	if projectName == "" {
		projectName = filepath.Base(absDir)
	}

	base := config.DataDir(absDir)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	cfg := model.DefaultConfig(projectName)

	dataDirs := []string{"archive", "quarantine", "logs"}
	for _, d := range dataDirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	projectDirs := []string{cfg.Paths.PRDDir, cfg.Paths.DoneDir, cfg.Paths.SpecsDir}
	for _, d := range projectDirs {
		if err := os.MkdirAll(filepath.Join(absDir, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := writeConfig(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return err
	}

	// The data dir ignores itself so queue/state/lock/log writes never
	// dirty the project tree or get swept into a change commit.
	if err := os.WriteFile(filepath.Join(base, ".gitignore"), []byte("*\n"), 0644); err != nil {
		return fmt.Errorf("write data dir gitignore: %w", err)
	}
	return nil
}

func writeConfig(path string, cfg model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
