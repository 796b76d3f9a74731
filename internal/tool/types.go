package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Category classifies a tool for phase-gating purposes (see internal/manager).
type Category string

const (
	CategoryReadOnly  Category = "READ_ONLY"
	CategoryExecution Category = "EXECUTION"
	CategoryUserInput Category = "USER_INPUT"
	CategoryGit       Category = "GIT"
	CategoryCI        Category = "CI"
)

// Mutating reports whether tools in this category are approval-requiring
// (EXECUTION or GIT, per the data model's tool-registry invariant).
func (c Category) Mutating() bool {
	return c == CategoryExecution || c == CategoryGit
}

// Tool is the unified interface every registered operation implements,
// whether a native builtin, a sub-agent/background-task helper, or an
// MCP adapter.
type Tool interface {
	// Name returns the stable identifier the model uses to select this tool.
	Name() string

	// Description returns a one-line natural-language description.
	Description() string

	// Category returns the gating category (see internal/manager's phase table).
	Category() Category

	// InputSchema returns a JSON Schema object describing accepted parameters.
	InputSchema() json.RawMessage

	// Execute runs the tool with JSON-encoded arguments already validated
	// against InputSchema by the registry.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Init initializes tool resources (e.g. MCP client connections).
	// Native tools may return nil.
	Init(ctx context.Context) error

	// Close releases tool resources.
	Close() error
}

// ToolResult is the structured outcome of a tool invocation (§3 data model).
type ToolResult struct {
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Summary         string         `json:"summary"`
	Detail          string         `json:"detail,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorKind       ErrorKind      `json:"error_kind,omitempty"`
	Steps           []string       `json:"steps,omitempty"`
	Suggestions     []string       `json:"suggestions,omitempty"`
	ContextForNext  map[string]any `json:"context_for_next,omitempty"`
}

// ErrorKind is the recovery strategist's failure taxonomy (§4.D, §7).
// Defined here (rather than in internal/recovery) because ToolResult is the
// producer; internal/recovery is a consumer that classifies raw error text
// into one of these values.
type ErrorKind string

const (
	ErrorNone       ErrorKind = ""
	ErrorNotFound   ErrorKind = "NOT_FOUND"
	ErrorPermission ErrorKind = "PERMISSION"
	ErrorValidation ErrorKind = "VALIDATION"
	ErrorTimeout    ErrorKind = "TIMEOUT"
	ErrorNetwork    ErrorKind = "NETWORK"
	ErrorSyntax     ErrorKind = "SYNTAX"
	ErrorConflict   ErrorKind = "CONFLICT"
	ErrorUnknown    ErrorKind = "UNKNOWN"
)

// Fail builds a failed ToolResult with the given kind and message — the
// uniform shape every builtin tool returns instead of a Go error, so a
// failing tool never aborts the agent loop (§7 propagation policy).
func Fail(kind ErrorKind, format string, args ...any) ToolResult {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return ToolResult{Success: false, Error: msg, ErrorKind: kind, Summary: msg}
}

// Ok builds a successful ToolResult.
func Ok(summary string, data map[string]any) ToolResult {
	return ToolResult{Success: true, Summary: summary, Data: data}
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "integer", "boolean", "number"
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	Enum        []string `json:"enum,omitempty"`
}

// BuildSchema generates a standard JSON Schema object from a list of
// SchemaParams — kept for tools whose parameters don't warrant a dedicated
// Go struct.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}

// SchemaFromStruct derives a JSON Schema from a Go parameter struct's tags,
// for tools whose parameter set is richer than BuildSchema's flat list is
// comfortable expressing (nested objects, array items).
func SchemaFromStruct(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(v)
	data, _ := json.Marshal(schema)
	return data
}
