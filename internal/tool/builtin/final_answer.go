package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ephraim-dev/ephraim/internal/tool"
)

// FinalAnswerTool is the meta-tool that closes out a run (§4.F COMPLETED
// transition). The agent loop special-cases its name after dispatch — see
// internal/loop/nodes.go — to drive the phase transition; the tool itself
// only validates and records the answer text.
type FinalAnswerTool struct{}

func NewFinalAnswerTool() *FinalAnswerTool { return &FinalAnswerTool{} }

func (t *FinalAnswerTool) Name() string { return "final_answer" }
func (t *FinalAnswerTool) Description() string {
	return "结束当前任务并向用户呈现最终结果。任务的所有步骤完成（或需要放弃）时调用。"
}

// Category is EXECUTION: it is the action that terminates the run.
func (t *FinalAnswerTool) Category() tool.Category { return tool.CategoryExecution }

func (t *FinalAnswerTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "answer", Type: "string", Description: "呈现给用户的最终总结", Required: true},
	)
}

func (t *FinalAnswerTool) Init(_ context.Context) error { return nil }
func (t *FinalAnswerTool) Close() error                 { return nil }

type finalAnswerArgs struct {
	Answer string `json:"answer"`
}

func (t *FinalAnswerTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a finalAnswerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if strings.TrimSpace(a.Answer) == "" {
		return tool.Fail(tool.ErrorValidation, "answer 不能为空"), nil
	}
	return tool.Ok(a.Answer, map[string]any{"answer": a.Answer}), nil
}

// ReplanTool signals the agent loop to abandon the current plan and return
// to PLANNING (§4.F). Like final_answer, the loop dispatches on its name;
// the tool only validates and records the stated reason.
type ReplanTool struct{}

func NewReplanTool() *ReplanTool { return &ReplanTool{} }

func (t *ReplanTool) Name() string { return "replan" }
func (t *ReplanTool) Description() string {
	return "放弃当前计划，返回 PLANNING 阶段重新规划。当执行过程中发现计划的前提已不成立时调用。"
}

func (t *ReplanTool) Category() tool.Category { return tool.CategoryExecution }

func (t *ReplanTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "reason", Type: "string", Description: "需要重新规划的原因", Required: true},
	)
}

func (t *ReplanTool) Init(_ context.Context) error { return nil }
func (t *ReplanTool) Close() error                 { return nil }

type replanArgs struct {
	Reason string `json:"reason"`
}

func (t *ReplanTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a replanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(tool.ErrorValidation, "参数解析失败: %v", err), nil
	}
	if strings.TrimSpace(a.Reason) == "" {
		return tool.Fail(tool.ErrorValidation, "reason 不能为空"), nil
	}
	return tool.Ok("计划已作废: "+a.Reason, map[string]any{"reason": a.Reason}), nil
}
