package state

import (
	"time"

	"github.com/ephraim-dev/ephraim/internal/tool"
)

// Plan is the structured intent produced by the planning model and gated by
// human approval (§3).
type Plan struct {
	GoalUnderstanding string   `json:"goal_understanding"`
	Reasoning         string   `json:"reasoning"`
	Steps             []string `json:"steps"`
	RiskAssessment    Risk     `json:"risk_assessment"`
	ValidationPlan    string   `json:"validation_plan"`
	CommitStrategy    string   `json:"commit_strategy"`
	Approved          bool     `json:"approved"`
}

// ActionRecord is an append-only log entry for one dispatched tool call (§3).
type ActionRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	Result    map[string]any `json:"result"`
	Success   bool           `json:"success"`
}

// GitStatus is a point-in-time snapshot of repository state (§3).
type GitStatus struct {
	Branch         string   `json:"branch"`
	Clean          bool     `json:"clean"`
	Modified       []string `json:"modified"`
	Untracked      []string `json:"untracked"`
	Staged         []string `json:"staged"`
	Deleted        []string `json:"deleted"`
	RemotePresent  bool     `json:"remote_present"`
}

// CIStatus is a point-in-time snapshot of a CI run (§3).
type CIStatus struct {
	Status      string   `json:"status"`
	Workflow    string   `json:"workflow"`
	RunID       string   `json:"run_id"`
	Conclusion  string   `json:"conclusion"`
	Duration    string   `json:"duration"`
	URL         string   `json:"url"`
	FailedTests []string `json:"failed_tests"`
}

// ErrorContext describes the most recent unresolved failure (§3).
type ErrorContext struct {
	Action      string         `json:"action"`
	Message     string         `json:"message"`
	Kind        tool.ErrorKind `json:"kind"`
	Attempts    int            `json:"attempts"`
	Params      map[string]any `json:"params"`
	Phase       Phase          `json:"phase"`
	PrevReason  string         `json:"prev_reasoning"`
}

// State is the authoritative session record (§4.B). All mutation happens
// through internal/manager; this type is a plain value object with read
// helpers. Not goroutine-safe — the agent loop is single-threaded (§5) and
// never mutates State while a tool is in flight.
type State struct {
	Phase  Phase
	Goal   string
	Plan   *Plan
	Confidence int
	Risk       Risk

	ActionLog []ActionRecord
	Iteration int
	MaxIterations int

	Git *GitStatus
	CI  *CIStatus

	LastError *ErrorContext

	// MisroutedProposals counts consecutive propose_plan responses while a
	// plan is already approved (§4.G).
	MisroutedProposals int

	// SameFailureStreak counts consecutive identical-action failures, reset
	// to zero on any success (§4.D, §4.G, §7).
	SameFailureStreak int
	LastFailedAction  string

	ApprovalPending bool
}

// New creates a fresh State in BOOT phase.
func New(maxIterations int) *State {
	return &State{
		Phase:         PhaseBoot,
		MaxIterations: maxIterations,
	}
}

// CanContinue is false iff the iteration ceiling has been reached (§8).
func (s *State) CanContinue() bool {
	return s.Iteration < s.MaxIterations
}

// RecentActions returns at most the last n action records, most-recent last.
func (s *State) RecentActions(n int) []ActionRecord {
	if n <= 0 || len(s.ActionLog) == 0 {
		return nil
	}
	if n >= len(s.ActionLog) {
		out := make([]ActionRecord, len(s.ActionLog))
		copy(out, s.ActionLog)
		return out
	}
	out := make([]ActionRecord, n)
	copy(out, s.ActionLog[len(s.ActionLog)-n:])
	return out
}

// RecordAction appends an ActionRecord and increments the iteration counter
// by exactly one (§8 invariant).
func (s *State) RecordAction(rec ActionRecord) {
	s.ActionLog = append(s.ActionLog, rec)
	s.Iteration++
}

// ConfidenceBand renders Confidence as a human-readable band (§4.B).
func (s *State) ConfidenceBand() string {
	return ConfidenceBand(s.Confidence)
}

// ClarificationNeeded is true when confidence < 80 OR risk = HIGH (§4.B).
func (s *State) ClarificationNeeded() bool {
	return s.Confidence < 80 || s.Risk == RiskHigh
}

// MutationCount counts EXECUTION/GIT (mutating) tool uses in the action log —
// the default plan-step progress estimator (§4.F, resolved Open Question).
func (s *State) MutationCount(mutatingTools map[string]bool) int {
	n := 0
	for _, a := range s.ActionLog {
		if mutatingTools[a.Tool] {
			n++
		}
	}
	return n
}

// CurrentStepIndex returns the plan-step progress estimate, clamped to the
// plan's length. overrideStep, when >= 0, is a model-self-reported index
// that takes precedence over the mutation-count estimate (§4.F).
func (s *State) CurrentStepIndex(mutatingTools map[string]bool, overrideStep int) int {
	if s.Plan == nil || len(s.Plan.Steps) == 0 {
		return 0
	}
	idx := s.MutationCount(mutatingTools)
	if overrideStep >= 0 {
		idx = overrideStep
	}
	if idx > len(s.Plan.Steps) {
		idx = len(s.Plan.Steps)
	}
	return idx
}

// ClearError clears the error context — called once a subsequent action
// succeeds (§3 invariant 5).
func (s *State) ClearError() {
	s.LastError = nil
	s.SameFailureStreak = 0
	s.LastFailedAction = ""
}
