package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tomoki/shuttle/internal/config"
	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/notify"
	"github.com/tomoki/shuttle/internal/phase"
	"github.com/tomoki/shuttle/internal/queue"
	"github.com/tomoki/shuttle/internal/retry"
	"github.com/tomoki/shuttle/internal/setup"
	"github.com/tomoki/shuttle/internal/specstore"
	"github.com/tomoki/shuttle/internal/state"
	"github.com/tomoki/shuttle/internal/store"
	"github.com/tomoki/shuttle/internal/vcs"
)

const version = "1.0.0"

// app holds everything one process invocation needs. Each CLI call is a
// fresh process over the persisted documents; nothing lives in memory
// between invocations.
type app struct {
	root   string
	cfg    model.Config
	logger *zap.Logger
	store  *store.Store
	queues *queue.Manager
	states *state.Manager
	audit  *events.Logger
	deps   *phase.Deps

	output string
}

func run(args []string) int {
	a := &app{}
	exit := 0

	rootCmd := &cobra.Command{
		Use:           "shuttle",
		Short:         "Multi-phase, human-gated change pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.root, "root", "C", ".", "project root directory")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "yaml", "result format: yaml or json")

	rootCmd.AddCommand(
		newInitCmd(a),
		newQueueCmd(a, &exit),
		newStateCmd(a, &exit),
		newPhaseCmd(a, &exit),
	)

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shuttle: %v\n", err)
		return 1
	}
	return exit
}

// bootstrap loads config and wires the collaborators. Called by every
// command except init, which runs before a project exists.
func (a *app) bootstrap() error {
	abs, err := filepath.Abs(a.root)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	a.root = abs

	cfg, err := config.Load(abs)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}

	dataDir := config.DataDir(abs)
	a.store = store.New(dataDir, a.logger)
	a.queues = queue.NewManager(a.store, a.logger)
	a.states = state.NewManager(a.store, a.logger)

	a.audit, err = events.NewLogger(filepath.Join(dataDir, "logs", "audit.jsonl"), events.DefaultMaxLogSize)
	if err != nil {
		a.logger.Warn("audit log unavailable", zap.Error(err))
		a.audit = nil
	}

	var sender notify.Sender = notify.Nop{}
	if cfg.Notify.Enabled && len(cfg.Notify.Webhooks) > 0 {
		sender = notify.NewWebhook(cfg.Notify.Webhooks,
			time.Duration(cfg.Notify.TimeoutSec)*time.Second, a.logger)
	}

	a.deps = &phase.Deps{
		Config: cfg,
		Root:   abs,
		Store:  a.store,
		Queue:  a.queues,
		State:  a.states,
		Retry:  retry.NewEngine(a.states),
		Git:    vcs.NewLocal(abs, a.logger),
		Specs:  specstore.NewTool(cfg.SpecTool.Command, abs, a.logger),
		Notify: sender,
		Audit:  a.audit,
		Logger: a.logger,
	}
	return nil
}

// withLock serializes mutating invocations across processes. The queue
// invariant assumes one writer at a time; flock enforces it.
func (a *app) withLock(fn func() error) error {
	lock := store.NewFileLock(filepath.Join(config.DataDir(a.root), "shuttle.lock"))
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("another shuttle invocation is running: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

// auditQueue records a queue mutation in the audit trail. Audit
// failures never fail the command.
func (a *app) auditQueue(res *model.Result, verb, path string) {
	if a.audit == nil {
		return
	}
	err := a.audit.Log(events.EventQueue, res.RunID, path, "", map[string]any{"verb": verb})
	if err != nil {
		a.logger.Warn("audit log write failed", zap.Error(err))
	}
}

// emit prints the result document on stdout and records the exit code.
func (a *app) emit(res *model.Result, exit *int) error {
	var (
		data []byte
		err  error
	)
	switch a.output {
	case "json":
		data, err = json.MarshalIndent(res, "", "  ")
		data = append(data, '\n')
	default:
		data, err = yaml.Marshal(res)
	}
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	os.Stdout.Write(data)
	*exit = res.ExitCode()
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func newInitCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the project data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup.Run(a.root, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", config.DataDir(a.root))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to directory basename)")
	return cmd
}
