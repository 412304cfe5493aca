// Package specstore wraps the external specification-store tool. The
// core only queries active changes and requests archival; the store's
// own formats stay its business.
package specstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Store is the collaborator interface consumed by the phase commands.
type Store interface {
	// ActiveChanges lists change names currently marked active.
	ActiveChanges(ctx context.Context) ([]string, error)
	// Register marks a change active.
	Register(ctx context.Context, name string) error
	// Archive marks a change inactive. Callers verify by re-querying
	// ActiveChanges rather than trusting the exit code.
	Archive(ctx context.Context, name string) error
}

// Tool shells out to the configured spec-store binary.
type Tool struct {
	command string
	dir     string
	logger  *zap.Logger
}

func NewTool(command, dir string, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{command: command, dir: dir, logger: logger}
}

func (t *Tool) ActiveChanges(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "list", "--json")
	if err != nil {
		return nil, err
	}

	// The tool prints either a bare array of names or objects with a
	// name field; accept both.
	var names []string
	if err := json.Unmarshal([]byte(out), &names); err == nil {
		return names, nil
	}
	var objs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(out), &objs); err != nil {
		return nil, fmt.Errorf("parse %s list output: %w", t.command, err)
	}
	for _, o := range objs {
		names = append(names, o.Name)
	}
	return names, nil
}

func (t *Tool) Register(ctx context.Context, name string) error {
	_, err := t.run(ctx, "add", name)
	return err
}

func (t *Tool) Archive(ctx context.Context, name string) error {
	_, err := t.run(ctx, "archive", name, "--yes")
	return err
}

func (t *Tool) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.command, args...)
	cmd.Dir = t.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", t.command, args[0], err, strings.TrimSpace(string(out)))
	}
	t.logger.Debug("spec tool", zap.Strings("args", args))
	return string(out), nil
}
