package builtin

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ephraim-dev/ephraim/internal/tool"
)

const ciTimeout = 180 * time.Second

// CIStatusTool runs the project's configured CI command (lint/build/test,
// whatever the workspace defines) and reports its outcome (§4.F CI_CHECK
// phase). It is the one CATEGORY_CI tool in the registry; CINode's RunCI
// callback wraps it the same way ValidatingNode's RunValidation wraps a
// validation command, keeping the phase transition decoupled from the
// concrete shell invocation.
type CIStatusTool struct {
	command string // e.g. "npm run ci", empty means "no CI configured"
}

func NewCIStatusTool(command string) *CIStatusTool {
	return &CIStatusTool{command: strings.TrimSpace(command)}
}

func (t *CIStatusTool) Name() string { return "ci_status" }
func (t *CIStatusTool) Description() string {
	return "运行项目配置的 CI 命令（lint/build/test），返回其输出和退出状态。"
}

func (t *CIStatusTool) Category() tool.Category { return tool.CategoryCI }

func (t *CIStatusTool) InputSchema() json.RawMessage {
	return tool.BuildSchema()
}

func (t *CIStatusTool) Init(_ context.Context) error { return nil }
func (t *CIStatusTool) Close() error                 { return nil }

func (t *CIStatusTool) Execute(ctx context.Context, _ json.RawMessage) (tool.ToolResult, error) {
	if t.command == "" {
		return tool.Fail(tool.ErrorValidation, "未配置 CI 命令（Ephraim.md 中的 Validation Expectations 未指定 CI 步骤）"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, ciTimeout)
	defer cancel()

	cmd := newShellCmd(ctx, t.command)
	out, err := cmd.CombinedOutput()
	outStr := strings.TrimSpace(safeRuneTruncate(string(out), maxOutputChars))

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tool.Fail(tool.ErrorTimeout, "CI 命令超时 (%v): %s", ciTimeout, outStr), nil
		}
		result := tool.Fail(tool.ErrorUnknown, "CI 失败: %v", err)
		result.Detail = outStr
		return result, nil
	}
	return tool.Ok(outStr, map[string]any{"command": t.command}), nil
}
