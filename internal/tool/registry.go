package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
)

// Registry manages all registered tools with thread-safe access.
//
// A Registry can be either a "root" registry (parent == nil) that owns its
// tools map, or a "view" registry (parent != nil) created by WithExtra that
// overlays additional tools on top of a parent. Views delegate Get/List to
// the parent, so changes to the parent (Register/Unregister) are immediately
// visible through the view. This lets the sub-agent supervisor and the
// background-task manager hand the execution node a registry scoped with
// their own id-correlated tools without mutating the global registry.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	parent *Registry // non-nil → view mode; tools map holds extras only
}

// NewRegistry creates an empty root tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. If a tool with the same name already
// exists, it is overwritten and a warning is logged.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		log.Printf("[Registry] WARNING: overwriting existing tool %q", t.Name())
	}
	r.tools[t.Name()] = t
}

// Unregister removes a tool from the registry (for hot-reload).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	log.Printf("[Registry] Unregistered tool: %s", name)
}

// Get retrieves a tool by name.
// For view registries: checks extras first, then delegates to parent.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	if r.parent != nil {
		return r.parent.Get(name)
	}
	return nil, false
}

// List returns all registered tools sorted by name.
// For view registries: merges parent tools with extras (extras override parent).
func (r *Registry) List() []Tool {
	if r.parent != nil {
		return r.listView()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// ListByCategory returns registered tools restricted to the given set of
// categories, sorted by name. Used by the state manager to build the
// phase-gated tool list for the brief (§4.F).
func (r *Registry) ListByCategory(allowed ...Category) []Tool {
	set := make(map[Category]bool, len(allowed))
	for _, c := range allowed {
		set[c] = true
	}
	var result []Tool
	for _, t := range r.List() {
		if set[t.Category()] {
			result = append(result, t)
		}
	}
	return result
}

// listView merges parent tools with this view's extras.
// Extras take precedence over parent tools with the same name.
func (r *Registry) listView() []Tool {
	parentTools := r.parent.List()

	r.mu.RLock()
	extras := make(map[string]Tool, len(r.tools))
	for k, v := range r.tools {
		extras[k] = v
	}
	r.mu.RUnlock()

	// Build merged list: parent tools (excluding overridden) + extras
	result := make([]Tool, 0, len(parentTools)+len(extras))
	for _, t := range parentTools {
		if _, overridden := extras[t.Name()]; !overridden {
			result = append(result, t)
		}
	}
	for _, t := range extras {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// ToolDefinition is the schema-bearing summary of a tool used when building
// the model's brief (§4.F) — name, description and input schema, without the
// Execute/Init/Close machinery.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Definitions returns ToolDefinitions for the given tools, in the order given.
func Definitions(tools []Tool) []ToolDefinition {
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Category:    t.Category(),
			Parameters:  t.InputSchema(),
		}
	}
	return defs
}

// GenerateToolsPrompt renders a human/model-readable listing of the given
// tools' names, descriptions and schemas, for inclusion in the brief.
func GenerateToolsPrompt(tools []Tool) string {
	if len(tools) == 0 {
		return "(no tools available in this phase)"
	}
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("\n### %s (%s)\n%s\n", t.Name(), t.Category(), t.Description()))
		if schema := t.InputSchema(); len(schema) > 0 {
			sb.WriteString(fmt.Sprintf("schema: %s\n", string(schema)))
		}
	}
	return sb.String()
}

// ValidateArgs checks a raw JSON arguments object against the tool's declared
// schema: missing required parameters, type mismatches, and unknown names
// are all rejected before the tool's Execute body runs (§4.A) — checkType
// asserts the decoded JSON type for each declared parameter and reports
// failure instead of converting, so a `"42"` string never silently passes
// for a declared integer.
func ValidateArgs(t Tool, args json.RawMessage) (json.RawMessage, error) {
	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(t.InputSchema(), &schema); err != nil {
		// Schema isn't in the flat shape ValidateArgs understands (e.g. a
		// struct-derived schema with nested definitions) — skip validation
		// rather than reject a well-formed call.
		return args, nil
	}

	var parsed map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}
	if parsed == nil {
		parsed = map[string]any{}
	}

	for _, req := range schema.Required {
		if _, ok := parsed[req]; !ok {
			return nil, fmt.Errorf("missing required parameter %q", req)
		}
	}
	for k, v := range parsed {
		prop, known := schema.Properties[k]
		if !known {
			return nil, fmt.Errorf("unknown parameter %q", k)
		}
		if err := checkType(prop.Type, v); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
	}

	out, _ := json.Marshal(parsed)
	return out, nil
}

// checkType reports whether v's decoded JSON type matches declaredType,
// without converting it — a mismatch (e.g. the string "42" for a declared
// integer parameter) is a validation error, not something to coerce.
func checkType(declaredType string, v any) error {
	switch declaredType {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("must be a string")
		}
	case "integer":
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("must be an integer")
		}
	case "number":
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("must be a number")
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("must be a boolean")
		}
	}
	return nil
}

// InitAll initializes all registered tools.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, t := range r.tools {
		if err := t.Init(ctx); err != nil {
			return fmt.Errorf("init tool %q: %w", name, err)
		}
	}
	log.Printf("[Registry] Initialized %d tools", len(r.tools))
	return nil
}

// CloseAll closes all registered tools, logging errors but not failing.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, t := range r.tools {
		if err := t.Close(); err != nil {
			log.Printf("[Registry] Error closing tool %s: %v", name, err)
		}
	}
}

// WithExtra returns a view of this Registry with additional tools overlaid.
// Used for per-request tool injection (e.g. sub-agent result tools scoped to
// one loop run).
//
// The returned Registry delegates Get/List to the parent, so changes to the
// parent (via Register/Unregister) are immediately visible through the view.
// Extras take precedence over parent tools with the same name.
//
// Can be chained: root.WithExtra(a).WithExtra(b) creates a view chain where
// lookups check b's extras → a's extras → root's tools.
func (r *Registry) WithExtra(extras ...Tool) *Registry {
	extrasMap := make(map[string]Tool, len(extras))
	for _, t := range extras {
		extrasMap[t.Name()] = t
	}
	return &Registry{
		parent: r,
		tools:  extrasMap,
	}
}
