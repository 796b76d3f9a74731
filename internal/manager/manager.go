// Package manager is the state manager (§4.F): the sole writer of phase,
// approval, iteration, confidence and risk, and the source of truth for
// which tool categories are permitted in each phase. The agent loop
// (internal/loop) never mutates a *state.State field directly — every
// mutation goes through a Manager method so the transition table and gating
// rules are enforced in one place.
package manager

import (
	"fmt"
	"time"

	"github.com/ephraim-dev/ephraim/internal/state"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

// permittedCategories is the §4.F tool-gating table.
var permittedCategories = map[state.Phase][]tool.Category{
	state.PhaseBoot:              {},
	state.PhasePlanning:          {tool.CategoryReadOnly, tool.CategoryUserInput},
	state.PhaseAwaitingApproval:  {tool.CategoryUserInput},
	state.PhaseExecuting:         {tool.CategoryReadOnly, tool.CategoryExecution, tool.CategoryGit, tool.CategoryUserInput},
	state.PhaseValidating:        {tool.CategoryReadOnly, tool.CategoryExecution, tool.CategoryUserInput},
	state.PhaseCICheck:           {tool.CategoryReadOnly, tool.CategoryCI, tool.CategoryUserInput},
	state.PhaseCompleted:         {tool.CategoryReadOnly, tool.CategoryUserInput},
}

// Manager owns a State and is the only component permitted to mutate it.
type Manager struct {
	s   *state.State
	reg *tool.Registry

	mutatingTools map[string]bool
}

// New creates a Manager wrapping a fresh State and the tool registry used
// for gating and mutation-count estimation.
func New(reg *tool.Registry, maxIterations int) *Manager {
	mutating := make(map[string]bool)
	for _, t := range reg.List() {
		if t.Category().Mutating() {
			mutating[t.Name()] = true
		}
	}
	return &Manager{
		s:             state.New(maxIterations),
		reg:           reg,
		mutatingTools: mutating,
	}
}

// State returns the underlying record for reading. Callers must not mutate
// it; all writes go through Manager methods.
func (m *Manager) State() *state.State { return m.s }

// Transition moves the phase, rejecting any pair not in the transition
// table (§4.F). Leaving AWAITING_APPROVAL clears the approval-pending flag.
func (m *Manager) Transition(to state.Phase) error {
	from := m.s.Phase
	if !state.CanTransition(from, to) {
		return fmt.Errorf("illegal phase transition %s -> %s", from, to)
	}
	if from == state.PhaseAwaitingApproval {
		m.s.ApprovalPending = false
	}
	m.s.Phase = to
	return nil
}

// PermittedCategories returns the categories allowed in the current phase.
func (m *Manager) PermittedCategories() []tool.Category {
	return permittedCategories[m.s.Phase]
}

// IsToolPermitted reports whether t may run in the current phase, including
// the approval gate on mutating categories (§4.F).
func (m *Manager) IsToolPermitted(t tool.Tool) bool {
	allowed := false
	for _, c := range permittedCategories[m.s.Phase] {
		if c == t.Category() {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if t.Category().Mutating() {
		return m.s.Plan != nil && m.s.Plan.Approved
	}
	return true
}

// PermittedTools filters the registry down to what the current phase and
// approval state allow.
func (m *Manager) PermittedTools() []tool.Tool {
	var out []tool.Tool
	for _, t := range m.reg.List() {
		if m.IsToolPermitted(t) {
			out = append(out, t)
		}
	}
	return out
}

// SetGoal records a new goal and resets per-task counters.
func (m *Manager) SetGoal(goal string) {
	m.s.Goal = goal
	m.s.MisroutedProposals = 0
	m.s.ClearError()
}

// ProposePlan stores a proposed plan (unapproved) and requests approval.
// Returns an error if a plan is already approved — the loop counts this as
// a misrouted proposal (§4.G).
func (m *Manager) ProposePlan(p *state.Plan) error {
	if m.s.Plan != nil && m.s.Plan.Approved {
		m.s.MisroutedProposals++
		return fmt.Errorf("a plan is already approved; this proposal is misrouted (%d consecutive)", m.s.MisroutedProposals)
	}
	m.s.Plan = p
	m.s.ApprovalPending = true
	return nil
}

// GrantApproval approves the pending plan and moves to EXECUTING.
func (m *Manager) GrantApproval() error {
	if m.s.Plan == nil {
		return fmt.Errorf("no plan pending approval")
	}
	m.s.Plan.Approved = true
	m.s.MisroutedProposals = 0
	return m.Transition(state.PhaseExecuting)
}

// DenyApproval discards the pending plan and returns to PLANNING.
func (m *Manager) DenyApproval() error {
	m.s.Plan = nil
	return m.Transition(state.PhasePlanning)
}

// RecordAction appends an action record, advances the iteration counter,
// and updates the same-failure streak (§3 invariant, §7).
func (m *Manager) RecordAction(toolName string, params map[string]any, result map[string]any, success bool) {
	m.s.RecordAction(state.ActionRecord{
		Timestamp: time.Now(),
		Tool:      toolName,
		Params:    params,
		Result:    result,
		Success:   success,
	})
	if success {
		m.s.ClearError()
		return
	}
	if m.s.LastFailedAction == toolName {
		m.s.SameFailureStreak++
	} else {
		m.s.SameFailureStreak = 1
		m.s.LastFailedAction = toolName
	}
}

// SetError records the active ErrorContext for the next brief.
func (m *Manager) SetError(ec *state.ErrorContext) { m.s.LastError = ec }

// SetConfidenceRisk records the model's self-reported confidence and risk,
// the only path by which these fields change (§4.F authority rule).
func (m *Manager) SetConfidenceRisk(confidence int, risk state.Risk) {
	m.s.Confidence = confidence
	m.s.Risk = risk
}

// CurrentStepIndex returns the plan-step progress estimate, honoring an
// optional model-reported override (§4.F).
func (m *Manager) CurrentStepIndex(overrideStep int) int {
	return m.s.CurrentStepIndex(m.mutatingTools, overrideStep)
}

// ExecutionComplete reports whether every plan step's mutation quota has
// been reached, the §4.G phase-progression trigger for EXECUTING→VALIDATING.
func (m *Manager) ExecutionComplete() bool {
	if m.s.Plan == nil || len(m.s.Plan.Steps) == 0 {
		return false
	}
	return m.s.MutationCount(m.mutatingTools) >= len(m.s.Plan.Steps)
}

// UpdateGit records a fresh git snapshot.
func (m *Manager) UpdateGit(g *state.GitStatus) { m.s.Git = g }

// UpdateCI records a fresh CI snapshot.
func (m *Manager) UpdateCI(c *state.CIStatus) { m.s.CI = c }

// Reset clears per-task state after completion, ready for the next goal
// (§4.G "final_answer" step).
func (m *Manager) Reset() {
	m.s.Plan = nil
	m.s.Goal = ""
	m.s.Confidence = 0
	m.s.Risk = ""
	m.s.MisroutedProposals = 0
	m.s.ClearError()
}
