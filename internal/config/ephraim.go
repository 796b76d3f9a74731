// Package config loads process configuration: environment variables via
// .env (env.go) and the human-edited project policy document Ephraim.md
// (§6). Ephraim.md parsing reuses the same "# Section" + "- bullet" scan
// internal/hooks.LoadFromConfig already applies to the Hooks section, so a
// user editing one part of the file doesn't have to learn two formats.
package config

import (
	"os"
	"strings"
)

// EphraimConfig holds the sections of Ephraim.md the agent core reads
// directly. Hooks and MCP Servers are parsed by their own packages
// (internal/hooks, internal/mcp) straight from RawMarkdown, since their
// line grammar carries structured sub-fields the other sections don't.
type EphraimConfig struct {
	ArchitectureConstraints []string
	CodingStandards         []string
	ProtectedAreas          []string
	ValidationExpectations  []string
	GitRules                []string

	RawMarkdown string
}

// LoadEphraimConfig reads and parses Ephraim.md at path. A missing file is
// not an error — it returns an empty config, since the document is optional
// project policy, not a required bootstrap file.
func LoadEphraimConfig(path string) (*EphraimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &EphraimConfig{}, nil
		}
		return nil, err
	}
	return ParseEphraimConfig(string(data)), nil
}

// ParseEphraimConfig extracts the bulleted list under each known "# Section"
// heading. Unknown headings and malformed (non "- ") lines are ignored,
// matching hooks.LoadFromConfig's best-effort tolerance.
func ParseEphraimConfig(content string) *EphraimConfig {
	cfg := &EphraimConfig{RawMarkdown: content}

	var current *[]string
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "# ") {
			current = sectionTarget(cfg, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			continue
		}
		if current == nil || !strings.HasPrefix(line, "- ") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if item != "" {
			*current = append(*current, item)
		}
	}
	return cfg
}

// sectionTarget maps a heading's lowercased text to the field it fills, or
// nil for sections owned by another package (Hooks, MCP Servers) or not
// recognized at all.
func sectionTarget(cfg *EphraimConfig, heading string) *[]string {
	switch strings.ToLower(strings.TrimSpace(heading)) {
	case "architecture constraints":
		return &cfg.ArchitectureConstraints
	case "coding standards":
		return &cfg.CodingStandards
	case "protected areas":
		return &cfg.ProtectedAreas
	case "validation expectations":
		return &cfg.ValidationExpectations
	case "git rules":
		return &cfg.GitRules
	default:
		return nil
	}
}

// Constraints flattens the sections the loop surfaces verbatim to the model
// as architecture/style guardrails (§4.F brief "constraints").
func (c *EphraimConfig) Constraints() []string {
	out := make([]string, 0, len(c.ArchitectureConstraints)+len(c.CodingStandards)+len(c.ProtectedAreas))
	out = append(out, c.ArchitectureConstraints...)
	out = append(out, c.CodingStandards...)
	for _, p := range c.ProtectedAreas {
		out = append(out, "protected area, do not modify without explicit approval: "+p)
	}
	return out
}

// ValidationCommands extracts the first inline `code span` from each
// Validation Expectations bullet. A bullet with no code span is policy prose
// for the model (e.g. "keep functions under 50 lines") rather than a
// runnable check, and is skipped here.
func (c *EphraimConfig) ValidationCommands() []string {
	var cmds []string
	for _, item := range c.ValidationExpectations {
		if cmd, ok := firstCodeSpan(item); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func firstCodeSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '`')
	if start < 0 {
		return "", false
	}
	rest := s[start+1:]
	end := strings.IndexByte(rest, '`')
	if end < 0 {
		return "", false
	}
	span := strings.TrimSpace(rest[:end])
	if span == "" {
		return "", false
	}
	return span, true
}
