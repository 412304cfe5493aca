// Package artifact reads and writes the per-change artifact set: the
// proposal document, the task checklist, and the compliance report.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	proposalFile   = "proposal.md"
	tasksFile      = "tasks.md"
	complianceFile = "compliance.md"
)

// Set locates the artifact directory for one change.
type Set struct {
	dir string
}

// NewSet returns the artifact set under <specsDir>/changes/<name>/.
func NewSet(specsDir, name string) *Set {
	return &Set{dir: filepath.Join(specsDir, "changes", name)}
}

func (s *Set) Dir() string            { return s.dir }
func (s *Set) ProposalPath() string   { return filepath.Join(s.dir, proposalFile) }
func (s *Set) TasksPath() string      { return filepath.Join(s.dir, tasksFile) }
func (s *Set) CompliancePath() string { return filepath.Join(s.dir, complianceFile) }

func (s *Set) Exists() bool {
	_, err := os.Stat(s.dir)
	return err == nil
}

// Scaffold creates the artifact directory with the proposal document and
// an initial task checklist. Existing files are left alone so re-running
// prebuild is idempotent.
func (s *Set) Scaffold(proposal string, tasks []string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	if _, err := os.Stat(s.ProposalPath()); os.IsNotExist(err) {
		if err := os.WriteFile(s.ProposalPath(), []byte(proposal), 0644); err != nil {
			return fmt.Errorf("write proposal: %w", err)
		}
	}

	if _, err := os.Stat(s.TasksPath()); os.IsNotExist(err) {
		var b strings.Builder
		b.WriteString("# Tasks\n\n")
		for _, task := range tasks {
			fmt.Fprintf(&b, "- [ ] %s\n", task)
		}
		if err := os.WriteFile(s.TasksPath(), []byte(b.String()), 0644); err != nil {
			return fmt.Errorf("write tasks: %w", err)
		}
	}

	return nil
}

var checklistItem = regexp.MustCompile(`(?m)^\s*[-*]\s*\[([ xX])\]\s*(.+)$`)

// Progress is the build phase's only numeric output.
type Progress struct {
	Completed int
	Total     int
	Remaining []string
}

func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed == p.Total
}

// Checklist parses the task list into completion counts and the titles
// of unchecked tasks.
func (s *Set) Checklist() (Progress, error) {
	data, err := os.ReadFile(s.TasksPath())
	if err != nil {
		return Progress{}, fmt.Errorf("read task checklist: %w", err)
	}
	return ParseChecklist(string(data)), nil
}

func ParseChecklist(content string) Progress {
	var p Progress
	for _, m := range checklistItem.FindAllStringSubmatch(content, -1) {
		p.Total++
		if m[1] == "x" || m[1] == "X" {
			p.Completed++
		} else {
			p.Remaining = append(p.Remaining, strings.TrimSpace(m[2]))
		}
	}
	return p
}

// WriteComplianceReport records the validate phase's verdict.
func (s *Set) WriteComplianceReport(compliant bool, violations []string) error {
	var b strings.Builder
	b.WriteString("# Compliance Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	if compliant {
		b.WriteString("Verdict: compliant\n")
	} else {
		b.WriteString("Verdict: non-compliant\n\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(s.CompliancePath(), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write compliance report: %w", err)
	}
	return nil
}
