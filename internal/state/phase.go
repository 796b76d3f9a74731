// Package state owns the authoritative session State record and the phase
// automaton's transition table (§3, §4.B, §4.F). Mutation happens only
// through internal/manager; this package exposes the record and its
// read-only accessors.
package state

// Phase is the current slot in the workflow automaton.
type Phase string

const (
	PhaseBoot              Phase = "BOOT"
	PhasePlanning          Phase = "PLANNING"
	PhaseAwaitingApproval  Phase = "AWAITING_APPROVAL"
	PhaseExecuting         Phase = "EXECUTING"
	PhaseValidating        Phase = "VALIDATING"
	PhaseCICheck           Phase = "CI_CHECK"
	PhaseCompleted         Phase = "COMPLETED"
)

// transitions enumerates the allowed (from → to) phase pairs (§4.F table).
var transitions = map[Phase]map[Phase]bool{
	PhaseBoot: {
		PhasePlanning: true,
	},
	PhasePlanning: {
		PhaseAwaitingApproval: true,
		PhaseCompleted:        true,
	},
	PhaseAwaitingApproval: {
		PhasePlanning:  true,
		PhaseExecuting: true,
		PhaseCompleted: true,
	},
	PhaseExecuting: {
		PhaseValidating: true,
		PhasePlanning:   true,
		PhaseCompleted:  true,
	},
	PhaseValidating: {
		PhaseCICheck:    true,
		PhaseExecuting:  true,
		PhasePlanning:   true,
		PhaseCompleted:  true,
	},
	PhaseCICheck: {
		PhaseCompleted: true,
		PhaseExecuting: true,
		PhasePlanning:  true,
	},
	PhaseCompleted: {
		PhasePlanning: true,
	},
}

// CanTransition reports whether (from, to) is in the transition table.
func CanTransition(from, to Phase) bool {
	return transitions[from][to]
}

// Risk is a derived, bounded risk level.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// ParseRisk validates a model-emitted risk string, defaulting to MEDIUM on
// an unrecognized value rather than rejecting the whole decision outright —
// risk is advisory, not safety-critical.
func ParseRisk(s string) Risk {
	switch Risk(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return Risk(s)
	default:
		return RiskMedium
	}
}

// ConfidenceBand renders a numeric confidence (0-100) as the human-readable
// band defined in §4.B.
func ConfidenceBand(confidence int) string {
	switch {
	case confidence >= 80:
		return "HIGH"
	case confidence >= 55:
		return "MEDIUM"
	case confidence >= 30:
		return "LOW"
	default:
		return "VERY_LOW"
	}
}
