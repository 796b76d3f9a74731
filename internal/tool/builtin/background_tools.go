package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ephraim-dev/ephraim/internal/background"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

// ── background_start ──

// BackgroundStartTool launches a long-running shell command that outlives a
// single tool call (§4.I), returning its task id immediately.
type BackgroundStartTool struct {
	mgr *background.Manager
	cwd string
}

func NewBackgroundStartTool(mgr *background.Manager, cwd string) *BackgroundStartTool {
	return &BackgroundStartTool{mgr: mgr, cwd: cwd}
}

func (t *BackgroundStartTool) Name() string { return "background_start" }
func (t *BackgroundStartTool) Description() string {
	return "在后台启动一个长期运行的命令（如开发服务器、watch 构建），立即返回 task id，不阻塞。"
}

func (t *BackgroundStartTool) Category() tool.Category { return tool.CategoryExecution }

func (t *BackgroundStartTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "command", Type: "string", Required: true, Description: "要在后台运行的 shell 命令"},
	)
}

func (t *BackgroundStartTool) Init(_ context.Context) error { return nil }
func (t *BackgroundStartTool) Close() error                 { return nil }

func (t *BackgroundStartTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if strings.TrimSpace(a.Command) == "" {
		return tool.Fail(tool.ErrorValidation, "command 不能为空"), nil
	}

	id, err := t.mgr.Start(a.Command, t.cwd)
	if err != nil {
		return tool.Fail(tool.ErrorUnknown, "启动失败: %v", err), nil
	}
	return tool.Ok(fmt.Sprintf("后台任务已启动: %s", id), map[string]any{"id": id}), nil
}

// ── background_status ──

// BackgroundStatusTool reports a background task's lifecycle state.
type BackgroundStatusTool struct {
	mgr *background.Manager
}

func NewBackgroundStatusTool(mgr *background.Manager) *BackgroundStatusTool {
	return &BackgroundStatusTool{mgr: mgr}
}

func (t *BackgroundStatusTool) Name() string            { return "background_status" }
func (t *BackgroundStatusTool) Description() string     { return "查询后台任务的当前状态（运行中/已完成/失败/已停止）。" }
func (t *BackgroundStatusTool) Category() tool.Category { return tool.CategoryReadOnly }

func (t *BackgroundStatusTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "id", Type: "string", Required: true, Description: "后台任务 id"},
	)
}

func (t *BackgroundStatusTool) Init(_ context.Context) error { return nil }
func (t *BackgroundStatusTool) Close() error                 { return nil }

func (t *BackgroundStatusTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	task, ok := t.mgr.Check(a.ID)
	if !ok {
		return tool.Fail(tool.ErrorNotFound, "后台任务 %q 不存在", a.ID), nil
	}
	return tool.Ok(
		fmt.Sprintf("%s [%s] (exit=%d): %s", task.ID, task.Status, task.ExitCode, task.Command),
		map[string]any{"status": string(task.Status), "exit_code": task.ExitCode},
	), nil
}

// ── background_output ──

// BackgroundOutputTool returns the tail of a background task's captured
// stdout/stderr.
type BackgroundOutputTool struct {
	mgr *background.Manager
}

func NewBackgroundOutputTool(mgr *background.Manager) *BackgroundOutputTool {
	return &BackgroundOutputTool{mgr: mgr}
}

func (t *BackgroundOutputTool) Name() string            { return "background_output" }
func (t *BackgroundOutputTool) Description() string     { return "获取后台任务已捕获的 stdout/stderr 尾部内容。" }
func (t *BackgroundOutputTool) Category() tool.Category { return tool.CategoryReadOnly }

func (t *BackgroundOutputTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "id", Type: "string", Required: true, Description: "后台任务 id"},
		tool.SchemaParam{Name: "tail", Type: "integer", Required: false, Description: "每个流保留的最大行数（默认全部）"},
	)
}

func (t *BackgroundOutputTool) Init(_ context.Context) error { return nil }
func (t *BackgroundOutputTool) Close() error                 { return nil }

func (t *BackgroundOutputTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		ID   string `json:"id"`
		Tail int    `json:"tail"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	out, ok := t.mgr.GetOutput(a.ID, a.Tail)
	if !ok {
		return tool.Fail(tool.ErrorNotFound, "后台任务 %q 不存在", a.ID), nil
	}

	var sb strings.Builder
	sb.WriteString("stdout:\n")
	for _, line := range out.Stdout {
		sb.WriteString(line + "\n")
	}
	sb.WriteString("stderr:\n")
	for _, line := range out.Stderr {
		sb.WriteString(line + "\n")
	}
	return tool.Ok(sb.String(), map[string]any{"stdout_lines": len(out.Stdout), "stderr_lines": len(out.Stderr)}), nil
}

// ── background_stop ──

// BackgroundStopTool terminates a running background task, escalating to a
// forced kill if it does not exit within the grace period.
type BackgroundStopTool struct {
	mgr *background.Manager
}

func NewBackgroundStopTool(mgr *background.Manager) *BackgroundStopTool {
	return &BackgroundStopTool{mgr: mgr}
}

func (t *BackgroundStopTool) Name() string            { return "background_stop" }
func (t *BackgroundStopTool) Description() string     { return "停止一个正在运行的后台任务。" }
func (t *BackgroundStopTool) Category() tool.Category { return tool.CategoryExecution }

func (t *BackgroundStopTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "id", Type: "string", Required: true, Description: "后台任务 id"},
	)
}

func (t *BackgroundStopTool) Init(_ context.Context) error { return nil }
func (t *BackgroundStopTool) Close() error                 { return nil }

func (t *BackgroundStopTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if err := t.mgr.Stop(a.ID); err != nil {
		return tool.Fail(tool.ErrorNotFound, "%s", err.Error()), nil
	}
	return tool.Ok(fmt.Sprintf("后台任务 %s 已停止", a.ID), nil), nil
}

// ── background_list ──

// BackgroundListTool enumerates background tasks.
type BackgroundListTool struct {
	mgr *background.Manager
}

func NewBackgroundListTool(mgr *background.Manager) *BackgroundListTool {
	return &BackgroundListTool{mgr: mgr}
}

func (t *BackgroundListTool) Name() string            { return "background_list" }
func (t *BackgroundListTool) Description() string     { return "列出后台任务，默认仅显示仍在运行的。" }
func (t *BackgroundListTool) Category() tool.Category { return tool.CategoryReadOnly }

func (t *BackgroundListTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "include_completed", Type: "boolean", Required: false, Description: "是否包含已结束的任务（默认 false）"},
	)
}

func (t *BackgroundListTool) Init(_ context.Context) error { return nil }
func (t *BackgroundListTool) Close() error                 { return nil }

func (t *BackgroundListTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		IncludeCompleted bool `json:"include_completed"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
		}
	}
	tasks := t.mgr.ListTasks(a.IncludeCompleted)
	if len(tasks) == 0 {
		return tool.Ok("（无后台任务）", map[string]any{"count": 0}), nil
	}
	var sb strings.Builder
	for _, task := range tasks {
		sb.WriteString(fmt.Sprintf("%s [%s]: %s\n", task.ID, task.Status, task.Command))
	}
	return tool.Ok(sb.String(), map[string]any{"count": len(tasks)}), nil
}
