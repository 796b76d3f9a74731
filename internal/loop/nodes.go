package loop

import (
	"context"
	"fmt"

	"github.com/ephraim-dev/ephraim/internal/core"
	"github.com/ephraim-dev/ephraim/internal/model"
	"github.com/ephraim-dev/ephraim/internal/prompt"
	"github.com/ephraim-dev/ephraim/internal/recovery"
	"github.com/ephraim-dev/ephraim/internal/state"
)

// cyclePrep carries the state pointer and the phase-specific system prompt
// from Prep into Exec — BaseNode.Exec only receives the PrepResult, not the
// state, so anything Exec needs must travel through here.
type cyclePrep struct {
	ls           *LoopState
	systemPrompt string
}

func decide(ctx context.Context, ls *LoopState, systemPrompt string) (model.Decision, error) {
	s := ls.Mgr.State()
	brief := ls.Mgr.BuildBrief(ls.RepoRoot, ls.Constraints, nil)

	messages := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: prompt.RenderBrief(brief)},
	}
	if s.Goal != "" {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: "Goal: " + s.Goal})
	}

	d, err := model.Decide(ctx, ls.providerForPhase(), messages)
	if err != nil {
		return model.Decision{}, err
	}
	ls.printf("[%s] %s (confidence=%d risk=%s)\n", s.Phase, d.Reasoning, d.Confidence, d.Risk)
	ls.Mgr.SetConfidenceRisk(d.Confidence, state.ParseRisk(d.Risk))
	return d, nil
}

// decisionNode is embedded by every model-driven phase node; it implements
// the Prep/Exec/ExecFallback trio identically, leaving Post to the embedder.
type decisionNode struct {
	systemPrompt func() string
}

func (n decisionNode) Prep(ls *LoopState) []cyclePrep {
	return []cyclePrep{{ls: ls, systemPrompt: n.systemPrompt()}}
}

func (n decisionNode) Exec(ctx context.Context, p cyclePrep) (model.Decision, error) {
	return decide(ctx, p.ls, p.systemPrompt)
}

func (n decisionNode) ExecFallback(err error) model.Decision {
	return model.Decision{Kind: model.ActionAskUser, Question: fmt.Sprintf("model call failed: %v", err)}
}

// ── BOOT ──

type bootPrep struct{}

type BootNode struct{}

func NewBootNode() *BootNode { return &BootNode{} }

func (n *BootNode) Prep(_ *LoopState) []bootPrep { return []bootPrep{{}} }
func (n *BootNode) Exec(context.Context, bootPrep) (bootPrep, error) {
	return bootPrep{}, nil
}
func (n *BootNode) ExecFallback(error) bootPrep { return bootPrep{} }
func (n *BootNode) Post(ls *LoopState, _ []bootPrep, _ ...bootPrep) core.Action {
	if err := ls.Mgr.Transition(state.PhasePlanning); err != nil {
		ls.printf("boot: %v\n", err)
		return core.ActionFailure
	}
	return core.ActionPropose
}

// ── PLANNING ──

type PlanningNode struct{ decisionNode }

func NewPlanningNode() *PlanningNode {
	return &PlanningNode{decisionNode{systemPrompt: prompt.PlanningSystemPrompt}}
}

func (n *PlanningNode) Post(ls *LoopState, _ []cyclePrep, results ...model.Decision) core.Action {
	if len(results) == 0 {
		return core.ActionContinue
	}
	d := results[0]

	switch d.Kind {
	case model.ActionProposePlan:
		p := &state.Plan{
			GoalUnderstanding: d.Plan.GoalUnderstanding,
			Reasoning:         d.Plan.Reasoning,
			Steps:             d.Plan.Steps,
			RiskAssessment:    state.ParseRisk(d.Risk),
			ValidationPlan:    d.Plan.ValidationPlan,
			CommitStrategy:    d.Plan.CommitStrategy,
		}
		if err := ls.Mgr.ProposePlan(p); err != nil {
			ls.printf("%v\n", err)
			return core.ActionContinue
		}
		ls.Mgr.Transition(state.PhaseAwaitingApproval)
		return core.ActionPropose

	case model.ActionAskUser:
		if ls.AskUser != nil {
			answer := ls.AskUser(d.Question)
			ls.Mgr.State().Goal += "\n" + answer
		}
		return core.ActionContinue

	case model.ActionTool:
		if d.ToolName == "final_answer" {
			ls.runTool(context.Background(), d)
			ls.Mgr.Transition(state.PhaseCompleted)
			return core.ActionComplete
		}
		ls.runTool(context.Background(), d)
		return core.ActionContinue
	}
	return core.ActionContinue
}

// ── AWAITING_APPROVAL ──

type approvalPrep struct{}

type ApprovalNode struct{}

func NewApprovalNode() *ApprovalNode { return &ApprovalNode{} }

func (n *ApprovalNode) Prep(_ *LoopState) []approvalPrep { return []approvalPrep{{}} }
func (n *ApprovalNode) Exec(context.Context, approvalPrep) (approvalPrep, error) {
	return approvalPrep{}, nil
}
func (n *ApprovalNode) ExecFallback(error) approvalPrep { return approvalPrep{} }
func (n *ApprovalNode) Post(ls *LoopState, _ []approvalPrep, _ ...approvalPrep) core.Action {
	plan := ls.Mgr.State().Plan
	granted := true
	if ls.ConfirmPlan != nil {
		granted = ls.ConfirmPlan(plan)
	}
	if granted {
		if err := ls.Mgr.GrantApproval(); err != nil {
			ls.printf("%v\n", err)
			return core.ActionDeny
		}
		if ls.WriteContextDoc != nil {
			_ = ls.WriteContextDoc(ls)
		}
		return core.ActionGrant
	}
	ls.Mgr.DenyApproval()
	return core.ActionDeny
}

// ── EXECUTING ──

type ExecutingNode struct{ decisionNode }

func NewExecutingNode() *ExecutingNode {
	return &ExecutingNode{decisionNode{systemPrompt: prompt.ExecutionSystemPrompt}}
}

func (n *ExecutingNode) Post(ls *LoopState, _ []cyclePrep, results ...model.Decision) core.Action {
	if len(results) == 0 {
		return core.ActionContinue
	}
	d := results[0]

	switch d.Kind {
	case model.ActionProposePlan:
		if err := ls.Mgr.ProposePlan(&state.Plan{Steps: d.Plan.Steps}); err != nil {
			ls.printf("%v\n", err)
			if ls.Mgr.State().MisroutedProposals >= 3 {
				ls.printf("giving up after repeated misrouted plan proposals\n")
				ls.Mgr.Transition(state.PhaseCompleted)
				return core.ActionComplete
			}
		}
		return core.ActionContinue

	case model.ActionAskUser:
		if ls.AskUser != nil {
			answer := ls.AskUser(d.Question)
			ls.Mgr.State().Goal += "\n" + answer
		}
		return core.ActionContinue

	case model.ActionTool:
		if d.ToolName == "final_answer" {
			ls.runTool(context.Background(), d)
			ls.Mgr.Transition(state.PhaseCompleted)
			return core.ActionComplete
		}
		if d.ToolName == "replan" {
			ls.Mgr.Transition(state.PhasePlanning)
			return core.ActionReplan
		}

		result, _ := ls.runTool(context.Background(), d)
		if !result.Success {
			if ec := ls.Mgr.State().LastError; ec != nil && recovery.ShouldForceComplete(ec, ec.Kind, ls.forceCompleteThreshold) {
				ls.printf("forcing completion after repeated %s failures on %s\n", ec.Kind, ec.Action)
				ls.Mgr.Transition(state.PhaseCompleted)
				return core.ActionComplete
			}
		}

		if !ls.Mgr.State().CanContinue() {
			ls.printf("iteration ceiling (%d) reached, halting\n", ls.Mgr.State().MaxIterations)
			ls.Mgr.Transition(state.PhaseCompleted)
			return core.ActionComplete
		}

		if ls.Mgr.ExecutionComplete() {
			ls.Mgr.Transition(state.PhaseValidating)
			return core.ActionValidate
		}
		return core.ActionContinue
	}
	return core.ActionContinue
}

// ── VALIDATING ──

type validatingPrep struct{}

type ValidatingNode struct{}

func NewValidatingNode() *ValidatingNode { return &ValidatingNode{} }

func (n *ValidatingNode) Prep(_ *LoopState) []validatingPrep { return []validatingPrep{{}} }
func (n *ValidatingNode) Exec(context.Context, validatingPrep) (validatingPrep, error) {
	return validatingPrep{}, nil
}
func (n *ValidatingNode) ExecFallback(error) validatingPrep { return validatingPrep{} }
func (n *ValidatingNode) Post(ls *LoopState, _ []validatingPrep, _ ...validatingPrep) core.Action {
	if ls.RunValidation == nil {
		ls.Mgr.Transition(state.PhaseCompleted)
		return core.ActionComplete
	}
	r := ls.RunValidation(ls)
	ls.Mgr.RecordAction("validate", nil, map[string]any{"summary": r.Summary}, r.Success)

	if !r.Success {
		ls.Mgr.Transition(state.PhaseExecuting)
		return core.ActionFix
	}
	if ls.CIEnabled {
		ls.Mgr.Transition(state.PhaseCICheck)
		return core.ActionCI
	}
	ls.Mgr.Transition(state.PhaseCompleted)
	if ls.WriteContextDoc != nil {
		_ = ls.WriteContextDoc(ls)
	}
	return core.ActionComplete
}

// ── CI_CHECK ──

type ciPrep struct{}

type CINode struct{}

func NewCINode() *CINode { return &CINode{} }

func (n *CINode) Prep(_ *LoopState) []ciPrep { return []ciPrep{{}} }
func (n *CINode) Exec(context.Context, ciPrep) (ciPrep, error) {
	return ciPrep{}, nil
}
func (n *CINode) ExecFallback(error) ciPrep { return ciPrep{} }
func (n *CINode) Post(ls *LoopState, _ []ciPrep, _ ...ciPrep) core.Action {
	if ls.RunCI == nil {
		ls.Mgr.Transition(state.PhaseCompleted)
		return core.ActionComplete
	}
	r := ls.RunCI(ls)
	ls.Mgr.RecordAction("ci_check", nil, map[string]any{"summary": r.Summary}, r.Success)

	if r.Success {
		ls.Mgr.Transition(state.PhaseCompleted)
		if ls.WriteContextDoc != nil {
			_ = ls.WriteContextDoc(ls)
		}
		return core.ActionComplete
	}
	ls.Mgr.Transition(state.PhaseExecuting)
	return core.ActionFix
}

// ── COMPLETED ──

type completedPrep struct{}

type CompletedNode struct{}

func NewCompletedNode() *CompletedNode { return &CompletedNode{} }

func (n *CompletedNode) Prep(_ *LoopState) []completedPrep { return []completedPrep{{}} }
func (n *CompletedNode) Exec(context.Context, completedPrep) (completedPrep, error) {
	return completedPrep{}, nil
}
func (n *CompletedNode) ExecFallback(error) completedPrep { return completedPrep{} }
func (n *CompletedNode) Post(ls *LoopState, _ []completedPrep, _ ...completedPrep) core.Action {
	if ls.WriteContextDoc != nil {
		_ = ls.WriteContextDoc(ls)
	}
	ls.Mgr.Reset()
	return core.ActionEnd
}
