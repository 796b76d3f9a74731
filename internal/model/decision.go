package model

import (
	"encoding/json"
	"fmt"
)

// toDecision validates a rawDecision's action tag and converts it to the
// corresponding Decision variant (§9 design note). Unlike the teacher's
// dynamic-JSON-to-struct decode (which trusted the shape implied by
// whichever fields were present), every field here is checked against the
// declared action before being trusted.
func toDecision(raw rawDecision) (Decision, error) {
	d := Decision{
		Reasoning:  raw.Reasoning,
		Confidence: raw.Confidence,
		Risk:       raw.Risk,
		PlanStep:   -1,
	}
	if raw.PlanStep != nil {
		d.PlanStep = *raw.PlanStep
	}

	switch raw.Action {
	case "propose_plan":
		if raw.Plan == nil {
			return Decision{}, fmt.Errorf("action %q requires a plan object", raw.Action)
		}
		if len(raw.Plan.Steps) == 0 {
			return Decision{}, fmt.Errorf("plan.steps must be non-empty")
		}
		d.Kind = ActionProposePlan
		d.Plan = &PlanProposal{
			GoalUnderstanding: raw.Plan.GoalUnderstanding,
			Reasoning:         raw.Plan.Reasoning,
			Steps:             raw.Plan.Steps,
			RiskAssessment:    raw.Plan.RiskAssessment,
			ValidationPlan:    raw.Plan.ValidationPlan,
			CommitStrategy:    raw.Plan.CommitStrategy,
		}
		return d, nil

	case "ask_user":
		question, _ := raw.Params["question"].(string)
		if question == "" {
			return Decision{}, fmt.Errorf("action %q requires params.question", raw.Action)
		}
		d.Kind = ActionAskUser
		d.Question = question
		return d, nil

	case "":
		return Decision{}, fmt.Errorf("response is missing an \"action\" field")

	default:
		// Anything else is treated as a tool invocation named by the action
		// value itself; params carries the tool's arguments (§4.E).
		d.Kind = ActionTool
		d.ToolName = raw.Action
		d.Params = raw.Params
		return d, nil
	}
}

// MarshalParams re-encodes a decision's params as a tool's json.RawMessage
// argument payload.
func MarshalParams(params map[string]any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(params)
}
