// Package model is the Model interface (§4.E): message formatting, backend
// invocation, strict-JSON response parsing with bounded retries, and
// streaming support. It never decides anything itself — it is a thin,
// validated translation layer between chat text and the tagged-sum Decision
// type the agent loop dispatches on (§9 design note).
package model

import "context"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StreamCallback is invoked for each streamed content fragment.
type StreamCallback func(chunk string)

// Provider is the chat backend contract. Any OpenAI-compatible endpoint can
// implement it.
type Provider interface {
	Call(ctx context.Context, messages []Message) (Message, error)
	CallStream(ctx context.Context, messages []Message, onChunk StreamCallback) (Message, error)
	Name() string
}

// ActionKind is the tagged-sum discriminant for a parsed Decision (§9).
type ActionKind string

const (
	ActionProposePlan ActionKind = "propose_plan"
	ActionAskUser     ActionKind = "ask_user"
	ActionTool        ActionKind = "tool" // ToolName holds the registered tool name
)

// rawDecision is the wire shape requested from the model (§4.E schema).
type rawDecision struct {
	Reasoning  string          `json:"reasoning"`
	Action     string          `json:"action"`
	Confidence int             `json:"confidence"`
	Risk       string          `json:"risk"`
	Plan       *rawPlan        `json:"plan,omitempty"`
	Params     map[string]any  `json:"params,omitempty"`
	PlanStep   *int            `json:"plan_step,omitempty"`
}

type rawPlan struct {
	GoalUnderstanding string   `json:"goal_understanding"`
	Reasoning         string   `json:"reasoning"`
	Steps             []string `json:"steps"`
	RiskAssessment    string   `json:"risk_assessment"`
	ValidationPlan    string   `json:"validation_plan"`
	CommitStrategy    string   `json:"commit_strategy"`
}

// Decision is the validated, typed form of a model response (§9 "Dynamic
// JSON model output" design note): one variant per allowed action value.
type Decision struct {
	Reasoning  string
	Confidence int
	Risk       string

	Kind ActionKind

	// Populated when Kind == ActionProposePlan.
	Plan *PlanProposal
	// Populated when Kind == ActionAskUser.
	Question string
	// Populated when Kind == ActionTool.
	ToolName string
	Params   map[string]any

	// PlanStep is the model's self-reported plan-step index, or -1 if absent
	// (§4.F resolved Open Question).
	PlanStep int
}

// PlanProposal is the typed payload of a propose_plan decision.
type PlanProposal struct {
	GoalUnderstanding string
	Reasoning         string
	Steps             []string
	RiskAssessment    string
	ValidationPlan    string
	CommitStrategy    string
}
