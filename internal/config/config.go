// Package config loads shuttle's layered configuration: built-in
// defaults, then .shuttle/config.yaml, then SHUTTLE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tomoki/shuttle/internal/model"
)

// DataDirName is the per-project data directory holding the queue,
// state, config, logs, and archives.
const DataDirName = ".shuttle"

// DataDir returns the data directory under root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// Load reads configuration for the project at root. A missing config
// file is not an error; defaults apply.
func Load(root string) (model.Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return model.Config{}, fmt.Errorf("resolve project root: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DataDir(abs))
	v.SetEnvPrefix("SHUTTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v, model.DefaultConfig(filepath.Base(abs)))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return model.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper, def model.Config) {
	v.SetDefault("project.name", def.Project.Name)
	v.SetDefault("paths.prd_dir", def.Paths.PRDDir)
	v.SetDefault("paths.done_dir", def.Paths.DoneDir)
	v.SetDefault("paths.specs_dir", def.Paths.SpecsDir)
	v.SetDefault("git.base_branch", def.Git.BaseBranch)
	v.SetDefault("git.branch_prefix", def.Git.BranchPrefix)
	v.SetDefault("git.remote", def.Git.Remote)
	v.SetDefault("spec_tool.command", def.SpecTool.Command)
	v.SetDefault("finalize.settle_delay_sec", def.Finalize.SettleDelaySec)
	v.SetDefault("finalize.stage_max_iterations", def.Finalize.StageMaxIterations)
	v.SetDefault("finalize.stage_poll_interval_ms", def.Finalize.StagePollIntervalMs)
	v.SetDefault("notify.enabled", def.Notify.Enabled)
	v.SetDefault("notify.webhooks", def.Notify.Webhooks)
	v.SetDefault("notify.timeout_sec", def.Notify.TimeoutSec)
	v.SetDefault("logging.level", def.Logging.Level)
}
