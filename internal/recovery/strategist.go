// Package recovery classifies tool failures and proposes a corrective next
// action (§4.D). It is stateless: all inputs arrive via the ErrorContext
// the caller (internal/loop) builds from a failed ToolResult.
package recovery

import (
	"strings"

	"github.com/ephraim-dev/ephraim/internal/state"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

// classifyRule pairs a case-insensitive substring trigger list with the
// error kind it maps to. Rules are evaluated in order; first match wins —
// the same "ordered table, first match wins" shape internal/agent's
// loop_detector used for its rule checks.
type classifyRule struct {
	kind     tool.ErrorKind
	triggers []string
}

var classifyRules = []classifyRule{
	{tool.ErrorNotFound, []string{"not found", "no such", "does not exist", "enoent"}},
	{tool.ErrorPermission, []string{"permission denied", "forbidden", "eacces"}},
	{tool.ErrorValidation, []string{"invalid", "pattern not found", "malformed"}},
	{tool.ErrorTimeout, []string{"timeout", "deadline"}},
	{tool.ErrorNetwork, []string{"connection refused", "econnrefused"}},
	{tool.ErrorSyntax, []string{"syntaxerror", "parse error", "indentation"}},
	{tool.ErrorConflict, []string{"already exists", "conflict"}},
}

// Classify maps an error message to one of the taxonomy kinds (§4.D table).
// UNKNOWN is the fallback when nothing matches.
func Classify(message string) tool.ErrorKind {
	lower := strings.ToLower(message)
	for _, rule := range classifyRules {
		for _, trig := range rule.triggers {
			if strings.Contains(lower, trig) {
				return rule.kind
			}
		}
	}
	return tool.ErrorUnknown
}

// remedies gives each kind its default corrective action name (§4.D table).
// Empty string means "no automatic remedy; surface to the user".
var remedies = map[tool.ErrorKind]string{
	tool.ErrorNotFound:   "glob_search",
	tool.ErrorPermission: "ask_user",
	tool.ErrorValidation: "read_file",
	tool.ErrorTimeout:    "final_answer",
	tool.ErrorNetwork:    "",
	tool.ErrorSyntax:     "read_file",
	tool.ErrorConflict:   "read_file",
	tool.ErrorUnknown:    "ask_user",
}

// maxRetries gives each kind's retry ceiling for the same (action, params)
// pair, independent of the overall three-attempt ceiling (§4.D retry policy).
var maxRetries = map[tool.ErrorKind]int{
	tool.ErrorPermission: 0,
	tool.ErrorUnknown:    1,
	tool.ErrorValidation: 2,
	tool.ErrorNotFound:   2,
	tool.ErrorSyntax:     2,
}

// overallRetryCeiling bounds retries of the same (action, params) pair
// regardless of kind (§4.D).
const overallRetryCeiling = 3

// Suggestion is the strategist's advisory next action (§3 glossary,
// "Recovery suggestion").
type Suggestion struct {
	Strategy   string         `json:"strategy"`
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Reasoning  string         `json:"reasoning"`
	Confidence int            `json:"confidence"`
}

// Recommend builds a RecoverySuggestion from an ErrorContext. It also
// applies the heuristic parameter-mutation remedies named in SPEC_FULL §12:
// shortening an unmatched apply_patch find-string to its first line, and
// glob-expanding a not-found path's basename.
func Recommend(ec *state.ErrorContext) Suggestion {
	action := remedies[ec.Kind]
	params := map[string]any{}

	switch {
	case ec.Kind == tool.ErrorNotFound:
		if path, ok := ec.Params["path"].(string); ok {
			params["pattern"] = "**/" + basename(path)
		}
	case ec.Kind == tool.ErrorValidation && ec.Action == "apply_patch":
		if find, ok := ec.Params["find"].(string); ok {
			params["path"], _ = ec.Params["path"].(string)
			params["find"] = firstLine(find)
		}
	}

	return Suggestion{
		Strategy:   string(ec.Kind),
		Action:     action,
		Params:     params,
		Reasoning:  reasoningFor(ec),
		Confidence: confidenceFor(ec),
	}
}

func reasoningFor(ec *state.ErrorContext) string {
	switch ec.Kind {
	case tool.ErrorNotFound:
		return "target not found; searching for the basename elsewhere in the workspace"
	case tool.ErrorPermission:
		return "permission denied; this needs the user's decision"
	case tool.ErrorValidation:
		return "the action's input didn't validate; re-reading the target should clarify the current content"
	case tool.ErrorTimeout:
		return "the action is taking too long; finalizing and skipping this step"
	case tool.ErrorNetwork:
		return "a network dependency is unreachable; no automatic remedy"
	case tool.ErrorSyntax:
		return "a syntax error was reported; re-reading the target before retrying"
	case tool.ErrorConflict:
		return "the target already exists; inspecting it before deciding how to proceed"
	default:
		return "unclassified failure; asking the user how to proceed"
	}
}

func confidenceFor(ec *state.ErrorContext) int {
	if ec.Attempts >= overallRetryCeiling {
		return 0
	}
	switch ec.Kind {
	case tool.ErrorNotFound, tool.ErrorValidation, tool.ErrorSyntax, tool.ErrorConflict:
		return 70
	default:
		return 30
	}
}

// ShouldRetry reports whether another attempt of the same (action, params)
// pair is permitted, given the kind-specific ceiling and the overall
// three-attempt ceiling (§4.D retry policy).
func ShouldRetry(kind tool.ErrorKind, attempts int) bool {
	if attempts >= overallRetryCeiling {
		return false
	}
	if ceiling, ok := maxRetries[kind]; ok {
		return attempts < ceiling
	}
	return attempts < overallRetryCeiling
}

// ForceCompleteThreshold is read from configuration (§7, §9 resolved Open
// Question) and passed in by the caller rather than hardcoded here.
//
// ShouldForceComplete reports whether a non-critical action has now failed
// at least threshold times with no permitted retry remaining.
func ShouldForceComplete(ec *state.ErrorContext, kind tool.ErrorKind, threshold int) bool {
	return ec.Attempts >= threshold && !ShouldRetry(kind, ec.Attempts)
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// firstLine truncates an unmatched apply_patch find-string to its first
// line, on the theory that a multi-line pattern more often drifts out of
// sync with the file than its opening line does.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
