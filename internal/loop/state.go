// Package loop is the agent loop driver (§4.G). It keeps the teacher's
// node/flow shape — one core.BaseNode per phase of reasoning, wired into a
// core.Workflow graph by Action-keyed successor edges — but rebuilds the
// routing table around the phase automaton (§4.F) instead of the
// tool/think/answer graph it started from (internal/agent/flow.go).
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ephraim-dev/ephraim/internal/gitstate"
	"github.com/ephraim-dev/ephraim/internal/manager"
	"github.com/ephraim-dev/ephraim/internal/memory"
	"github.com/ephraim-dev/ephraim/internal/model"
	"github.com/ephraim-dev/ephraim/internal/recovery"
	"github.com/ephraim-dev/ephraim/internal/state"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

// LoopState is the shared state threaded through every phase node (the
// "State" type parameter of core.BaseNode for this flow).
type LoopState struct {
	Mgr      *manager.Manager
	Planner  model.Provider
	Executor model.Provider
	Registry *tool.Registry
	Mem      *memory.Memory

	RepoRoot    string
	Constraints []string
	CIEnabled   bool

	Out io.Writer

	// AskUser collects a human answer to a question surfaced by the model.
	AskUser func(question string) string
	// ConfirmPlan presents a plan and returns true on approval.
	ConfirmPlan func(p *state.Plan) bool
	// RunValidation and RunCI are invoked directly by their phase nodes;
	// they return a ToolResult-shaped outcome without going through the
	// tool registry, since they are orchestration steps rather than
	// model-dispatched actions.
	RunValidation func(ls *LoopState) tool.ToolResult
	RunCI         func(ls *LoopState) tool.ToolResult
	// WriteContextDoc persists the human-readable summary file (§4.G
	// "Context document"). A failure here is non-fatal.
	WriteContextDoc func(ls *LoopState) error

	// lastDecision carries the most recently parsed decision between Exec
	// and Post within a single node invocation.
	lastDecision model.Decision
	// forceCompleteThreshold configures the recovery strategist's
	// force-complete trigger (§7, §9 resolved Open Question).
	forceCompleteThreshold int
}

// NewLoopState wires a LoopState with the resolved force-complete threshold.
func NewLoopState(mgr *manager.Manager, planner, executor model.Provider, reg *tool.Registry, mem *memory.Memory) *LoopState {
	return &LoopState{
		Mgr:                     mgr,
		Planner:                 planner,
		Executor:                executor,
		Registry:                reg,
		Mem:                     mem,
		forceCompleteThreshold:  model.ForceCompleteThreshold(),
	}
}

func (ls *LoopState) providerForPhase() model.Provider {
	if ls.Mgr.State().Phase == state.PhasePlanning {
		return ls.Planner
	}
	return ls.Executor
}

func (ls *LoopState) printf(format string, args ...any) {
	if ls.Out == nil {
		return
	}
	fmt.Fprintf(ls.Out, format, args...)
}

// runTool dispatches a tool call through phase/approval gating, records the
// action, and classifies failure for the recovery strategist (§4.G step 5,
// §4.D).
func (ls *LoopState) runTool(ctx context.Context, d model.Decision) (tool.ToolResult, error) {
	t, ok := ls.Registry.Get(d.ToolName)
	if !ok {
		return tool.Fail(tool.ErrorNotFound, "unknown tool %q", d.ToolName), nil
	}
	if !ls.Mgr.IsToolPermitted(t) {
		return tool.Fail(tool.ErrorPermission, "tool %q is not permitted in phase %s", d.ToolName, ls.Mgr.State().Phase), nil
	}

	rawArgs, err := model.MarshalParams(d.Params)
	if err != nil {
		return tool.Fail(tool.ErrorValidation, "could not encode params: %v", err), nil
	}
	args, err := tool.ValidateArgs(t, rawArgs)
	if err != nil {
		return tool.Fail(tool.ErrorValidation, "%v", err), nil
	}

	result, execErr := t.Execute(ctx, args)
	if execErr != nil {
		result = tool.Fail(tool.ErrorUnknown, "%v", execErr)
	}

	resultMap := map[string]any{"summary": result.Summary, "success": result.Success}
	ls.Mgr.RecordAction(d.ToolName, d.Params, resultMap, result.Success)

	if result.Success && t.Category() == tool.CategoryGit {
		if g, err := gitstate.Refresh(ls.RepoRoot); err == nil {
			ls.Mgr.UpdateGit(g)
		}
	}

	if !result.Success {
		kind := result.ErrorKind
		if kind == "" {
			kind = recovery.Classify(result.Error)
		}
		attempts := ls.Mgr.State().SameFailureStreak
		ls.Mgr.SetError(&state.ErrorContext{
			Action:     d.ToolName,
			Message:    result.Error,
			Kind:       kind,
			Attempts:   attempts,
			Params:     d.Params,
			Phase:      ls.Mgr.State().Phase,
			PrevReason: d.Reasoning,
		})
	}
	return result, nil
}

func decisionJSON(d model.Decision) string {
	b, _ := json.Marshal(d.Params)
	return string(b)
}
