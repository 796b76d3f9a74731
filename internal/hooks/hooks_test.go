package hooks

import (
	"context"
	"strings"
	"testing"
)

const sampleConfig = `# Architecture Constraints
- keep packages small

# Hooks
- pre_tool: echo pretool (for apply_patch, write_file)
- post_commit: echo postcommit
- on_error: echo erroroccurred

# MCP Servers
- search: mcp-search --stdio
`

func TestLoadFromConfigParsesHooksSection(t *testing.T) {
	m := New()
	n := m.LoadFromConfig(sampleConfig)
	if n != 3 {
		t.Fatalf("loaded %d hooks, want 3", n)
	}

	preTool := m.ForEvent(EventPreTool)
	if len(preTool) != 1 {
		t.Fatalf("expected 1 pre_tool hook, got %d", len(preTool))
	}
	if preTool[0].Command != "echo pretool" {
		t.Errorf("Command = %q", preTool[0].Command)
	}
	if len(preTool[0].Tools) != 2 || preTool[0].Tools[0] != "apply_patch" {
		t.Errorf("Tools = %v", preTool[0].Tools)
	}

	postCommit := m.ForEvent(EventPostCommit)
	if len(postCommit) != 1 || postCommit[0].Tools != nil {
		t.Errorf("expected unscoped post_commit hook, got %+v", postCommit)
	}
}

func TestLoadFromConfigIgnoresOtherSections(t *testing.T) {
	m := New()
	m.LoadFromConfig(sampleConfig)
	if len(m.hooks) != 3 {
		t.Fatalf("expected hooks parsed only from the Hooks section, got %d", len(m.hooks))
	}
}

func TestMatchesToolFilter(t *testing.T) {
	h := Hook{Event: EventPreTool, Command: "echo", Tools: []string{"write_file"}}
	if !h.MatchesTool("write_file") {
		t.Error("expected match for write_file")
	}
	if h.MatchesTool("read_file") {
		t.Error("expected no match for read_file")
	}

	unscoped := Hook{Event: EventOnStart, Command: "echo"}
	if !unscoped.MatchesTool("anything") {
		t.Error("unscoped hook should match every tool")
	}
}

func TestRunExecutesMatchingHooksAndReportsExitCode(t *testing.T) {
	m := New()
	m.Register(Hook{Event: EventPreTool, Command: "exit 0", Tools: []string{"write_file"}})
	m.Register(Hook{Event: EventPreTool, Command: "exit 1"})
	m.Register(Hook{Event: EventPostTool, Command: "echo should-not-run"})

	results := m.Run(context.Background(), EventPreTool, "write_file", "", nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || results[0].ExitCode != 0 {
		t.Errorf("first hook = %+v, want success", results[0])
	}
	if results[1].Success || results[1].ExitCode != 1 || !results[1].Blocked {
		t.Errorf("second hook = %+v, want failed+blocked", results[1])
	}
}

func TestRunDisabledSkipsAll(t *testing.T) {
	m := New()
	m.Enabled = false
	m.Register(Hook{Event: EventOnStart, Command: "echo hi"})

	results := m.Run(context.Background(), EventOnStart, "", "", nil)
	if results != nil {
		t.Errorf("expected nil results when disabled, got %v", results)
	}
}

func TestRunStopsAfterBlockingHook(t *testing.T) {
	m := New()
	m.Register(Hook{Event: EventOnError, Command: "exit 1"})
	m.Register(Hook{Event: EventOnError, Command: "exit 0"})

	results := m.Run(context.Background(), EventOnError, "", "", nil)
	if len(results) != 1 {
		t.Fatalf("expected to stop after the first blocking hook, got %d results", len(results))
	}
}

func TestParseHookLineRejectsUnknownEvent(t *testing.T) {
	_, ok := parseHookLine("bogus_event: echo hi")
	if ok {
		t.Error("expected unknown event to be rejected")
	}
}

func TestRunPassesContextEnv(t *testing.T) {
	m := New()
	m.Register(Hook{Event: EventOnStart, Command: `test "$EPHRAIM_PHASE" = "PLANNING"`})

	results := m.Run(context.Background(), EventOnStart, "", "", map[string]string{"phase": "PLANNING"})
	if len(results) != 1 || !results[0].Success {
		t.Errorf("expected hook to observe injected env var, got %+v", results)
	}
}

func TestRunOneCapturesStderr(t *testing.T) {
	m := New()
	m.Register(Hook{Event: EventOnStart, Command: "echo oops 1>&2; exit 1"})

	results := m.Run(context.Background(), EventOnStart, "", "", nil)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Stderr, "oops") {
		t.Errorf("Stderr = %q, want to contain 'oops'", results[0].Stderr)
	}
}
