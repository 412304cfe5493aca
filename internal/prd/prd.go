// Package prd parses requirements documents: canonical change names,
// section extraction by heading, gap analysis, and detection of
// metadata-only edits.
package prd

import (
	"regexp"
	"strings"
)

// namePrefix strips leading date or ordinal prefixes like "2024-06-01-"
// or "012_" from document filenames.
var namePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[-_]|\d+[-_])`)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveName turns a requirements-document path into the canonical change
// identifier used for branches, artifact directories, and the spec store.
func DeriveName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = namePrefix.ReplaceAllString(base, "")
	base = strings.ToLower(base)
	base = nonAlnum.ReplaceAllString(base, "-")
	return strings.Trim(base, "-")
}

// Section is one `## `-headed block of a requirements document.
type Section struct {
	Title string
	Body  string
}

// ParseSections splits a document on level-2 headings. Content before the
// first heading is returned under the empty title.
func ParseSections(content string) []Section {
	var sections []Section
	current := Section{}
	var body []string

	flush := func() {
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Title != "" || current.Body != "" {
			sections = append(sections, current)
		}
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = Section{Title: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

type GapSeverity string

const (
	SeverityHigh GapSeverity = "high"
	SeverityLow  GapSeverity = "low"
)

// Gap is one prose deficiency found by analysis.
type Gap struct {
	Section  string
	Severity GapSeverity
	Message  string
}

// RequiredSections must be present with non-empty bodies before a
// proposal can be drafted.
var RequiredSections = []string{"Problem", "Goals", "Requirements", "Acceptance Criteria"}

var placeholderMarkers = []string{"TBD", "TODO", "???", "[placeholder]", "FIXME"}

var emptyListItem = regexp.MustCompile(`(?m)^\s*[-*]\s*$`)

// AnalyzeGaps computes the gap list for a requirements document. Missing
// required sections and unresolved placeholders are high severity; empty
// list items are low.
func AnalyzeGaps(content string) []Gap {
	var gaps []Gap
	sections := ParseSections(content)

	byTitle := map[string]Section{}
	for _, s := range sections {
		byTitle[strings.ToLower(s.Title)] = s
	}

	for _, required := range RequiredSections {
		s, ok := byTitle[strings.ToLower(required)]
		if !ok {
			gaps = append(gaps, Gap{
				Section:  required,
				Severity: SeverityHigh,
				Message:  "required section is missing",
			})
			continue
		}
		if s.Body == "" {
			gaps = append(gaps, Gap{
				Section:  required,
				Severity: SeverityHigh,
				Message:  "required section is empty",
			})
		}
	}

	for _, s := range sections {
		name := s.Title
		if name == "" {
			name = "(preamble)"
		}
		for _, marker := range placeholderMarkers {
			if strings.Contains(s.Body, marker) {
				gaps = append(gaps, Gap{
					Section:  name,
					Severity: SeverityHigh,
					Message:  "unresolved placeholder marker " + marker,
				})
			}
		}
		if emptyListItem.MatchString(s.Body) {
			gaps = append(gaps, Gap{
				Section:  name,
				Severity: SeverityLow,
				Message:  "empty list item",
			})
		}
	}

	return gaps
}

// HasHighSeverity reports whether any gap is a correctness blocker.
func HasHighSeverity(gaps []Gap) bool {
	for _, g := range gaps {
		if g.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// SplitFrontMatter separates a leading `---` front-matter block (the
// document's validation metadata) from the body.
func SplitFrontMatter(content string) (meta, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	meta = rest[:end]
	body = rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return meta, body
}

// MetadataOnlyChange reports whether the working copy of a document
// differs from the committed copy only in its front-matter metadata.
// Bodies are compared with per-line trailing whitespace normalized; this
// is a heuristic, and a close call is treated as a content change.
func MetadataOnlyChange(working, committed string) bool {
	_, workingBody := SplitFrontMatter(working)
	_, committedBody := SplitFrontMatter(committed)
	if normalizeBody(workingBody) != normalizeBody(committedBody) {
		return false
	}
	// Identical bodies and identical metadata means no change at all.
	return working != committed
}

func normalizeBody(body string) string {
	lines := strings.Split(body, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
