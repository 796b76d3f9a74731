package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ephraim-dev/ephraim/internal/tool"
)

// protectedBranches can never be pushed to directly by the agent, matching
// the conservative default a Git Rules bullet like "never push to main"
// would otherwise have to spell out by hand.
var protectedBranches = map[string]bool{
	"main": true, "master": true,
}

// GitCommitTool is the one GIT-category tool in the registry: it stages and
// commits the workspace's pending changes (§4.F CommitStrategy), with an
// optional push of the current branch. Grounded on git_info.go's
// subprocess/timeout/env-filter shape, generalized from read-only query
// arguments to a fixed stage→commit→(push) sequence.
type GitCommitTool struct {
	workspaceDir string
}

func NewGitCommitTool(workspaceDir string) *GitCommitTool {
	return &GitCommitTool{workspaceDir: workspaceDir}
}

func (t *GitCommitTool) Name() string { return "git_commit" }
func (t *GitCommitTool) Description() string {
	return "暂存全部变更并提交。message 必填；push=true 时额外推送当前分支（main/master 禁止推送）。"
}

// Category is GIT: it mutates repository history, distinct from EXECUTION's
// workspace-file mutations so the phase table can gate the two separately.
func (t *GitCommitTool) Category() tool.Category { return tool.CategoryGit }

func (t *GitCommitTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "message", Type: "string", Description: "提交信息", Required: true},
		tool.SchemaParam{Name: "push", Type: "boolean", Description: "提交后是否推送当前分支（默认 false）", Required: false},
	)
}

func (t *GitCommitTool) Init(_ context.Context) error { return nil }
func (t *GitCommitTool) Close() error                 { return nil }

type gitCommitArgs struct {
	Message string `json:"message"`
	Push    bool   `json:"push"`
}

func (t *GitCommitTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a gitCommitArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if strings.TrimSpace(a.Message) == "" {
		return tool.Fail(tool.ErrorValidation, "message 不能为空"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	if out, err := t.run(ctx, "add", "-A"); err != nil {
		result := tool.Fail(tool.ErrorUnknown, "git add 失败: %v", err)
		result.Detail = out
		return result, nil
	}

	commitOut, err := t.run(ctx, "commit", "-m", a.Message)
	if err != nil {
		if strings.Contains(strings.ToLower(commitOut), "nothing to commit") {
			return tool.Fail(tool.ErrorValidation, "没有可提交的变更"), nil
		}
		result := tool.Fail(tool.ErrorUnknown, "git commit 失败: %v", err)
		result.Detail = commitOut
		return result, nil
	}

	summary := commitOut
	if a.Push {
		branch, err := t.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			result := tool.Fail(tool.ErrorUnknown, "无法确定当前分支: %v", err)
			result.Detail = branch
			return result, nil
		}
		branch = strings.TrimSpace(branch)
		if protectedBranches[branch] {
			return tool.Fail(tool.ErrorPermission, "安全限制: 禁止直接推送到受保护分支 %q", branch), nil
		}
		pushOut, err := t.run(ctx, "push", "origin", branch)
		if err != nil {
			result := tool.Fail(tool.ErrorNetwork, "git push 失败: %v", err)
			result.Detail = pushOut
			return result, nil
		}
		summary = fmt.Sprintf("%s\n已推送到 origin/%s", summary, branch)
	}

	return tool.Ok(summary, map[string]any{"pushed": a.Push}), nil
}

func (t *GitCommitTool) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = t.workspaceDir
	cmd.Env = filterEnv(os.Environ())
	out, err := cmd.CombinedOutput()
	return safeRuneTruncate(strings.TrimSpace(string(out)), maxOutputChars), err
}
