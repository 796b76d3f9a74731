package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ephraim-dev/ephraim/internal/subagent"
	"github.com/ephraim-dev/ephraim/internal/tool"
)

const subagentDefaultWaitAll = 90 * time.Second

// ── spawn_subagent ──

// SpawnSubagentTool starts a concurrent sub-agent reasoning pass (§4.H) and
// returns its id immediately without blocking on completion.
type SpawnSubagentTool struct {
	sup *subagent.Supervisor
}

func NewSpawnSubagentTool(sup *subagent.Supervisor) *SpawnSubagentTool {
	return &SpawnSubagentTool{sup: sup}
}

func (t *SpawnSubagentTool) Name() string { return "spawn_subagent" }
func (t *SpawnSubagentTool) Description() string {
	return "启动一个并发子代理去探索代码库、起草计划片段或研究某个问题，立即返回 id，不等待完成。"
}

// Category is EXECUTION: it launches a concurrent model call that consumes
// the user's quota and runs outside the parent's step accounting.
func (t *SpawnSubagentTool) Category() tool.Category { return tool.CategoryExecution }

func (t *SpawnSubagentTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "kind", Type: "string", Required: true,
			Description: "子代理类型", Enum: []string{"EXPLORE", "PLAN", "EXECUTE", "RESEARCH"}},
		tool.SchemaParam{Name: "task", Type: "string", Required: true, Description: "交给子代理的任务描述"},
		tool.SchemaParam{Name: "context", Type: "string", Required: false, Description: "可选的背景信息"},
	)
}

func (t *SpawnSubagentTool) Init(_ context.Context) error { return nil }
func (t *SpawnSubagentTool) Close() error                 { return nil }

type spawnSubagentArgs struct {
	Kind    string `json:"kind"`
	Task    string `json:"task"`
	Context string `json:"context"`
}

var validSubagentKinds = map[string]subagent.Kind{
	"EXPLORE":  subagent.KindExplore,
	"PLAN":     subagent.KindPlan,
	"EXECUTE":  subagent.KindExecute,
	"RESEARCH": subagent.KindResearch,
}

func (t *SpawnSubagentTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a spawnSubagentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	kind, ok := validSubagentKinds[strings.ToUpper(a.Kind)]
	if !ok {
		return tool.Fail(tool.ErrorValidation, "无效的 kind %q，支持: EXPLORE, PLAN, EXECUTE, RESEARCH", a.Kind), nil
	}
	if strings.TrimSpace(a.Task) == "" {
		return tool.Fail(tool.ErrorValidation, "task 不能为空"), nil
	}

	id := t.sup.Spawn(kind, a.Task, a.Context)
	return tool.Ok(fmt.Sprintf("子代理已启动: %s (kind=%s)", id, kind), map[string]any{"id": id, "kind": string(kind)}), nil
}

// ── subagent_status ──

// SubagentStatusTool checks a sub-agent's status, or blocks (bounded by
// timeout_seconds) waiting for one or more to finish.
type SubagentStatusTool struct {
	sup *subagent.Supervisor
}

func NewSubagentStatusTool(sup *subagent.Supervisor) *SubagentStatusTool {
	return &SubagentStatusTool{sup: sup}
}

func (t *SubagentStatusTool) Name() string { return "subagent_status" }
func (t *SubagentStatusTool) Description() string {
	return "查询一个或多个子代理的状态。提供 wait=true 时会阻塞等待其完成（最多 timeout_seconds 秒）。"
}

func (t *SubagentStatusTool) Category() tool.Category { return tool.CategoryReadOnly }

func (t *SubagentStatusTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"ids": {"type": "array", "items": {"type": "string"}, "description": "子代理 id 列表"},
			"wait": {"type": "boolean", "description": "是否阻塞等待完成（默认 false）"},
			"timeout_seconds": {"type": "integer", "description": "等待超时秒数（默认 90）"}
		},
		"required": ["ids"]
	}`)
}

func (t *SubagentStatusTool) Init(_ context.Context) error { return nil }
func (t *SubagentStatusTool) Close() error                 { return nil }

type subagentStatusArgs struct {
	IDs            []string `json:"ids"`
	Wait           bool     `json:"wait"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

func (t *SubagentStatusTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a subagentStatusArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if len(a.IDs) == 0 {
		return tool.Fail(tool.ErrorValidation, "ids 不能为空"), nil
	}

	timeout := subagentDefaultWaitAll
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
	}

	data := make(map[string]any, len(a.IDs))
	var sb strings.Builder
	if a.Wait {
		results := t.sup.WaitAll(a.IDs, timeout)
		for _, id := range a.IDs {
			r, ok := results[id]
			if !ok {
				sb.WriteString(fmt.Sprintf("%s: 未找到\n", id))
				continue
			}
			sb.WriteString(fmt.Sprintf("%s [%s]: %s\n", id, r.Status, summarizeSubagent(r)))
			data[id] = r.Status
		}
	} else {
		for _, id := range a.IDs {
			r, ok := t.sup.Check(id)
			if !ok {
				sb.WriteString(fmt.Sprintf("%s: 未找到\n", id))
				continue
			}
			sb.WriteString(fmt.Sprintf("%s [%s]: %s\n", id, r.Status, summarizeSubagent(r)))
			data[id] = r.Status
		}
	}

	return tool.Ok(sb.String(), data), nil
}

func summarizeSubagent(a subagent.SubAgent) string {
	switch a.Status {
	case subagent.StatusCompleted:
		return truncateLine(a.Result, 300)
	case subagent.StatusFailed:
		return "错误: " + a.Err
	default:
		return "(进行中)"
	}
}

// ── cancel_subagent ──

// CancelSubagentTool marks a running sub-agent cancelled; its result, once
// the in-flight model call returns, is discarded.
type CancelSubagentTool struct {
	sup *subagent.Supervisor
}

func NewCancelSubagentTool(sup *subagent.Supervisor) *CancelSubagentTool {
	return &CancelSubagentTool{sup: sup}
}

func (t *CancelSubagentTool) Name() string            { return "cancel_subagent" }
func (t *CancelSubagentTool) Description() string     { return "取消一个子代理，其后续结果将被丢弃。" }
func (t *CancelSubagentTool) Category() tool.Category { return tool.CategoryExecution }

func (t *CancelSubagentTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "id", Type: "string", Required: true, Description: "子代理 id"},
	)
}

func (t *CancelSubagentTool) Init(_ context.Context) error { return nil }
func (t *CancelSubagentTool) Close() error                 { return nil }

func (t *CancelSubagentTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if a.ID == "" {
		return tool.Fail(tool.ErrorValidation, "id 不能为空"), nil
	}
	if err := t.sup.Cancel(a.ID); err != nil {
		return tool.Fail(tool.ErrorNotFound, "%s", err.Error()), nil
	}
	return tool.Ok(fmt.Sprintf("子代理 %s 已取消", a.ID), nil), nil
}
