package prompt

import (
	"fmt"
	"strings"

	"github.com/ephraim-dev/ephraim/internal/manager"
)

// jsonSchemaConstraint is the L1 hardcoded constraint (§4.E): the exact
// response shape every phase prompt demands, regardless of L2/L3 content.
const jsonSchemaConstraint = `Respond with a single JSON object and nothing else — no prose before or after it, no markdown fences required but tolerated. Required keys:
  "reasoning":   non-empty string explaining your decision
  "action":      "propose_plan", "ask_user", or the name of a registered tool
  "confidence":  integer 0-100
  "risk":        one of "LOW", "MEDIUM", "HIGH"
  "plan":        required object when action is "propose_plan": {goal_understanding, reasoning, steps (array), risk_assessment, validation_plan, commit_strategy}
  "params":      required object otherwise — the named tool's arguments, or {"question": "..."} for ask_user
Optionally include "plan_step" (integer) with your own estimate of which plan step you are on.`

// defaultLoader serves the embedded L2 prompt files with no disk overrides.
// The agent loop uses this package-level instance; callers needing runtime
// overrides or L3 user rules should construct their own PromptLoader via
// NewPromptLoader and use Load/LoadUserRules directly.
var defaultLoader = NewPromptLoader("", "", "")

// PlanningSystemPrompt is the L1+L2 system prompt for the PLANNING phase.
func PlanningSystemPrompt() string {
	l2 := defaultLoader.Load("planning.md")
	return joinSections(l2, jsonSchemaConstraint)
}

// ExecutionSystemPrompt is the L1+L2 system prompt for the EXECUTING,
// VALIDATING, and CI_CHECK phases.
func ExecutionSystemPrompt() string {
	l2 := defaultLoader.Load("execution.md")
	return joinSections(l2, jsonSchemaConstraint)
}

// LoadSkill returns the raw text/template source for a built-in skill
// (§4.J), e.g. LoadSkill("commit") loads prompts/skill_commit.md.
func LoadSkill(name string) string {
	return defaultLoader.Load("skill_" + name + ".md")
}

func joinSections(sections ...string) string {
	var kept []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, strings.TrimSpace(s))
		}
	}
	return strings.Join(kept, "\n\n")
}

// RenderBrief formats a manager.Brief into the user-turn text sent alongside
// the system prompt (§4.F "brief assembly").
func RenderBrief(b manager.Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Phase: %s\n", b.Phase)
	fmt.Fprintf(&sb, "Repo root: %s\n", b.RepoRoot)
	fmt.Fprintf(&sb, "Iteration: %d/%d\n\n", b.Iteration, b.MaxIterations)

	if len(b.Constraints) > 0 {
		sb.WriteString("Constraints:\n")
		for _, c := range b.Constraints {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Plan:\n%s\n", b.PlanSummary)

	if len(b.RecentActions) > 0 {
		sb.WriteString("Recent actions:\n")
		for _, a := range b.RecentActions {
			fmt.Fprintf(&sb, "- %s\n", a)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Git: %s\n", b.GitSummary)
	fmt.Fprintf(&sb, "CI: %s\n", b.CISummary)

	if b.ErrorBlock != "" {
		fmt.Fprintf(&sb, "\n%s\n", b.ErrorBlock)
	}

	if len(b.Snippets) > 0 {
		sb.WriteString("\nFile snippets:\n")
		for path, snippet := range b.Snippets {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", path, snippet)
		}
	}

	sb.WriteString("\nTools available this phase:\n")
	sb.WriteString(b.ToolsPrompt)

	return sb.String()
}
