// Package model defines the data structures for shuttle's configuration,
// queue, state, and result documents.
package model

type Config struct {
	Project  ProjectConfig  `yaml:"project" mapstructure:"project"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Git      GitConfig      `yaml:"git" mapstructure:"git"`
	SpecTool SpecToolConfig `yaml:"spec_tool" mapstructure:"spec_tool"`
	Finalize FinalizeConfig `yaml:"finalize" mapstructure:"finalize"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

type ProjectConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
}

type PathsConfig struct {
	// PRDDir holds incoming requirements documents.
	PRDDir string `yaml:"prd_dir" mapstructure:"prd_dir"`
	// DoneDir is where finalize relocates a shipped requirements document.
	DoneDir string `yaml:"done_dir" mapstructure:"done_dir"`
	// SpecsDir is the root of the specification store's change artifacts.
	SpecsDir string `yaml:"specs_dir" mapstructure:"specs_dir"`
}

type GitConfig struct {
	BaseBranch   string `yaml:"base_branch" mapstructure:"base_branch"`
	BranchPrefix string `yaml:"branch_prefix" mapstructure:"branch_prefix"`
	Remote       string `yaml:"remote" mapstructure:"remote"`
}

type SpecToolConfig struct {
	// Command is the specification-store binary queried for active
	// changes and invoked for archival.
	Command string `yaml:"command" mapstructure:"command"`
}

type FinalizeConfig struct {
	// SettleDelaySec is the fixed wait before the staging loop, letting
	// build tooling and editor saves flush to disk.
	SettleDelaySec int `yaml:"settle_delay_sec" mapstructure:"settle_delay_sec"`
	// StageMaxIterations bounds the stage-with-polling loop.
	StageMaxIterations int `yaml:"stage_max_iterations" mapstructure:"stage_max_iterations"`
	// StagePollIntervalMs is the sleep between staging re-checks.
	StagePollIntervalMs int `yaml:"stage_poll_interval_ms" mapstructure:"stage_poll_interval_ms"`
}

type NotifyConfig struct {
	Enabled    bool     `yaml:"enabled" mapstructure:"enabled"`
	Webhooks   []string `yaml:"webhooks" mapstructure:"webhooks"`
	TimeoutSec int      `yaml:"timeout_sec" mapstructure:"timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the configuration written by `shuttle init`.
func DefaultConfig(projectName string) Config {
	return Config{
		Project: ProjectConfig{Name: projectName},
		Paths: PathsConfig{
			PRDDir:   "prds",
			DoneDir:  "prds/done",
			SpecsDir: "specs",
		},
		Git: GitConfig{
			BaseBranch:   "main",
			BranchPrefix: "change/",
			Remote:       "origin",
		},
		SpecTool: SpecToolConfig{Command: "openspec"},
		Finalize: FinalizeConfig{
			SettleDelaySec:      2,
			StageMaxIterations:  5,
			StagePollIntervalMs: 500,
		},
		Notify: NotifyConfig{
			Enabled:    false,
			TimeoutSec: 5,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
