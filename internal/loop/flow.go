package loop

import (
	"context"

	"github.com/ephraim-dev/ephraim/internal/core"
	"github.com/ephraim-dev/ephraim/internal/model"
)

// BuildFlow assembles the phase automaton as a core.Workflow graph (§4.F
// transition table, §4.G implementation note):
//
//	Boot -propose-> Planning -propose-> Approval -grant-> Executing -validate-> Validating -ci-> CI -complete-> Completed
//	                   ^continue            |deny|            |replan|              |fix|          |fix|
//	                   +--------------------+    +------------+                     +----+         +----+
func BuildFlow() core.Workflow[LoopState] {
	boot := core.NewNode[LoopState, bootPrep, bootPrep](NewBootNode(), 0)
	planning := core.NewNode[LoopState, cyclePrep, model.Decision](NewPlanningNode(), 1)
	approval := core.NewNode[LoopState, approvalPrep, approvalPrep](NewApprovalNode(), 0)
	executing := core.NewNode[LoopState, cyclePrep, model.Decision](NewExecutingNode(), 1)
	validating := core.NewNode[LoopState, validatingPrep, validatingPrep](NewValidatingNode(), 0)
	ci := core.NewNode[LoopState, ciPrep, ciPrep](NewCINode(), 0)
	completed := core.NewNode[LoopState, completedPrep, completedPrep](NewCompletedNode(), 0)

	boot.AddSuccessor(planning, core.ActionPropose)

	planning.AddSuccessor(approval, core.ActionPropose)
	planning.AddSuccessor(planning, core.ActionContinue)
	planning.AddSuccessor(completed, core.ActionComplete)

	approval.AddSuccessor(executing, core.ActionGrant)
	approval.AddSuccessor(planning, core.ActionDeny)

	executing.AddSuccessor(executing, core.ActionContinue)
	executing.AddSuccessor(validating, core.ActionValidate)
	executing.AddSuccessor(planning, core.ActionReplan)
	executing.AddSuccessor(completed, core.ActionComplete)

	validating.AddSuccessor(executing, core.ActionFix)
	validating.AddSuccessor(ci, core.ActionCI)
	validating.AddSuccessor(completed, core.ActionComplete)

	ci.AddSuccessor(executing, core.ActionFix)
	ci.AddSuccessor(completed, core.ActionComplete)

	flow := core.NewFlow[LoopState](boot)
	return flow
}

// Driver runs one full goal cycle through the phase automaton flow.
type Driver struct {
	flow core.Workflow[LoopState]
}

// NewDriver builds a Driver with a fresh phase-automaton flow.
func NewDriver() *Driver {
	return &Driver{flow: BuildFlow()}
}

// RunGoal stores goal on the manager's state and drives the flow from BOOT
// to COMPLETED (or failure). Returns the terminal Action.
func (dr *Driver) RunGoal(ctx context.Context, ls *LoopState, goal string) core.Action {
	ls.Mgr.SetGoal(goal)
	return dr.flow.Run(ctx, ls)
}
