package recovery

import (
	"testing"

	"github.com/ephraim-dev/ephraim/internal/state"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		message string
		want    tool.ErrorKind
	}{
		{"file not found: foo.go", tool.ErrorNotFound},
		{"No such file or directory", tool.ErrorNotFound},
		{"ENOENT: no such file", tool.ErrorNotFound},
		{"Permission denied", tool.ErrorPermission},
		{"operation forbidden", tool.ErrorPermission},
		{"EACCES: permission denied", tool.ErrorPermission},
		{"invalid argument", tool.ErrorValidation},
		{"pattern not found in file", tool.ErrorValidation},
		{"malformed request body", tool.ErrorValidation},
		{"context deadline exceeded", tool.ErrorTimeout},
		{"command timeout after 120s", tool.ErrorTimeout},
		{"connection refused", tool.ErrorNetwork},
		{"dial tcp: ECONNREFUSED", tool.ErrorNetwork},
		{"SyntaxError: unexpected token", tool.ErrorSyntax},
		{"parse error on line 3", tool.ErrorSyntax},
		{"IndentationError: expected an indented block", tool.ErrorSyntax},
		{"file already exists", tool.ErrorConflict},
		{"merge conflict detected", tool.ErrorConflict},
		{"something entirely unrecognized happened", tool.ErrorUnknown},
		{"", tool.ErrorUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.message); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.message, got, c.want)
		}
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	if got := Classify("PERMISSION DENIED"); got != tool.ErrorPermission {
		t.Errorf("Classify(upper-case) = %q, want PERMISSION", got)
	}
}

func TestClassifyFirstRuleWins(t *testing.T) {
	// A message matching two rules' trigger lists should resolve to whichever
	// rule appears first in classifyRules.
	if got := Classify("invalid: connection refused"); got != tool.ErrorValidation {
		t.Errorf("Classify() = %q, want VALIDATION (earlier rule)", got)
	}
}

func TestRecommendNotFoundGlobsBasename(t *testing.T) {
	ec := &state.ErrorContext{
		Action: "read_file",
		Kind:   tool.ErrorNotFound,
		Params: map[string]any{"path": "internal/foo/bar.go"},
	}
	sug := Recommend(ec)
	if sug.Action != "glob_search" {
		t.Errorf("Action = %q, want glob_search", sug.Action)
	}
	if sug.Params["pattern"] != "**/bar.go" {
		t.Errorf("Params[pattern] = %v, want **/bar.go", sug.Params["pattern"])
	}
}

func TestRecommendApplyPatchShortensFindToFirstLine(t *testing.T) {
	ec := &state.ErrorContext{
		Action: "apply_patch",
		Kind:   tool.ErrorValidation,
		Params: map[string]any{
			"path": "main.go",
			"find": "func main() {\n\tfmt.Println(\"hi\")\n}",
		},
	}
	sug := Recommend(ec)
	if sug.Params["find"] != "func main() {" {
		t.Errorf("Params[find] = %q, want first line only", sug.Params["find"])
	}
	if sug.Params["path"] != "main.go" {
		t.Errorf("Params[path] = %q, want main.go", sug.Params["path"])
	}
}

func TestRecommendApplyPatchSingleLineFindUnchanged(t *testing.T) {
	ec := &state.ErrorContext{
		Action: "apply_patch",
		Kind:   tool.ErrorValidation,
		Params: map[string]any{"path": "main.go", "find": "already one line"},
	}
	sug := Recommend(ec)
	if sug.Params["find"] != "already one line" {
		t.Errorf("Params[find] = %q, want unchanged", sug.Params["find"])
	}
}

func TestRecommendConfidenceZeroAtRetryCeiling(t *testing.T) {
	ec := &state.ErrorContext{Kind: tool.ErrorNotFound, Attempts: overallRetryCeiling}
	if sug := Recommend(ec); sug.Confidence != 0 {
		t.Errorf("Confidence = %d, want 0 at retry ceiling", sug.Confidence)
	}
}

func TestShouldRetryRespectsPerKindCeiling(t *testing.T) {
	if ShouldRetry(tool.ErrorPermission, 0) {
		t.Error("ShouldRetry(PERMISSION, 0) = true, want false (ceiling 0)")
	}
	if !ShouldRetry(tool.ErrorValidation, 1) {
		t.Error("ShouldRetry(VALIDATION, 1) = false, want true (ceiling 2)")
	}
	if ShouldRetry(tool.ErrorValidation, 2) {
		t.Error("ShouldRetry(VALIDATION, 2) = true, want false (ceiling 2)")
	}
}

func TestShouldRetryRespectsOverallCeiling(t *testing.T) {
	// ErrorConflict has no per-kind entry in maxRetries, so it falls back to
	// the overall ceiling.
	if !ShouldRetry(tool.ErrorConflict, overallRetryCeiling-1) {
		t.Error("ShouldRetry just under overall ceiling = false, want true")
	}
	if ShouldRetry(tool.ErrorConflict, overallRetryCeiling) {
		t.Error("ShouldRetry at overall ceiling = true, want false")
	}
}

func TestShouldForceComplete(t *testing.T) {
	ec := &state.ErrorContext{Kind: tool.ErrorPermission, Attempts: 3}
	if !ShouldForceComplete(ec, tool.ErrorPermission, 3) {
		t.Error("ShouldForceComplete = false, want true (threshold met and PERMISSION never retries)")
	}

	ec2 := &state.ErrorContext{Kind: tool.ErrorValidation, Attempts: 1}
	if ShouldForceComplete(ec2, tool.ErrorValidation, 3) {
		t.Error("ShouldForceComplete = true, want false (retries remain and threshold unmet)")
	}
}
