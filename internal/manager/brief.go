package manager

import (
	"fmt"
	"strings"

	"github.com/ephraim-dev/ephraim/internal/state"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

// Brief is the curated payload given to the model each iteration (§4.F). It
// deliberately omits raw repository state: only summaries and schemas.
type Brief struct {
	Phase         state.Phase
	Goal          string
	RepoRoot      string
	Iteration     int
	MaxIterations int
	Constraints   []string
	PlanSummary   string
	RecentActions []string
	GitSummary    string
	CISummary     string
	ToolsPrompt   string
	ErrorBlock    string
	Snippets      map[string]string
}

// BuildBrief assembles a Brief from the manager's current state.
func (m *Manager) BuildBrief(repoRoot string, constraints []string, snippets map[string]string) Brief {
	s := m.s
	b := Brief{
		Phase:         s.Phase,
		Goal:          s.Goal,
		RepoRoot:      repoRoot,
		Iteration:     s.Iteration,
		MaxIterations: s.MaxIterations,
		Constraints:   constraints,
		PlanSummary:   planSummary(s, m.mutatingTools),
		RecentActions: recentActionLines(s, 5),
		GitSummary:    gitSummary(s.Git),
		CISummary:     ciSummary(s.CI),
		ToolsPrompt:   tool.GenerateToolsPrompt(m.PermittedTools()),
		Snippets:      snippets,
	}
	if s.LastError != nil {
		b.ErrorBlock = fmt.Sprintf("Last error on %q (%s, attempt %d): %s",
			s.LastError.Action, s.LastError.Kind, s.LastError.Attempts, s.LastError.Message)
	}
	return b
}

func planSummary(s *state.State, mutating map[string]bool) string {
	if s.Plan == nil {
		return "(no plan yet)"
	}
	step := s.CurrentStepIndex(mutating, -1)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal understanding: %s\n", s.Plan.GoalUnderstanding)
	for i, st := range s.Plan.Steps {
		marker := "  "
		switch {
		case i < step:
			marker = "[x]"
		case i == step:
			marker = "[>]"
		default:
			marker = "[ ]"
		}
		fmt.Fprintf(&sb, "%s %d. %s\n", marker, i+1, st)
	}
	fmt.Fprintf(&sb, "Validation plan: %s\n", s.Plan.ValidationPlan)
	return sb.String()
}

func recentActionLines(s *state.State, n int) []string {
	var lines []string
	for _, a := range s.RecentActions(n) {
		status := "ok"
		if !a.Success {
			status = "failed"
		}
		lines = append(lines, fmt.Sprintf("%s(%s) -> %s", a.Tool, status, summarizeResult(a.Result)))
	}
	return lines
}

func summarizeResult(result map[string]any) string {
	if result == nil {
		return ""
	}
	if s, ok := result["summary"].(string); ok {
		return s
	}
	return ""
}

func gitSummary(g *state.GitStatus) string {
	if g == nil {
		return "(git status unknown)"
	}
	clean := "clean"
	if !g.Clean {
		clean = "dirty"
	}
	return fmt.Sprintf("branch=%s %s modified=%d untracked=%d staged=%d",
		g.Branch, clean, len(g.Modified), len(g.Untracked), len(g.Staged))
}

func ciSummary(c *state.CIStatus) string {
	if c == nil {
		return "(no CI run)"
	}
	return fmt.Sprintf("status=%s conclusion=%s duration=%s", c.Status, c.Conclusion, c.Duration)
}
