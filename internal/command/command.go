// Package command dispatches slash input (§4.J): built-in commands run
// synchronously against the session state, while the named skills expand a
// prompt template and hand it back to the caller to feed into the agent
// loop as if the user had typed it. Grounded on internal/web.CommandHandler's
// case-folded-first-token map-of-handlers idiom, adapted from an HTTP
// endpoint to a direct in-process call.
package command

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ephraim-dev/ephraim/internal/manager"
	"github.com/ephraim-dev/ephraim/internal/memory"
	"github.com/ephraim-dev/ephraim/internal/prompt"
	"github.com/ephraim-dev/ephraim/internal/state"
)

// Result is the outcome of dispatching one line of input.
type Result struct {
	// Handled is true if the line was a recognized command or skill and
	// should not be passed to the agent loop as-is.
	Handled bool
	// Message is printed directly to the terminal for built-in commands.
	Message string
	// ExpandedGoal is set for skills: the rendered prompt to feed the loop
	// in place of the raw input.
	ExpandedGoal string
	// Quit requests the CLI exit.
	Quit bool
}

// builtinCommands are commands handled without entering the reasoning loop.
var builtinCommands = map[string]bool{
	"help": true, "clear": true, "status": true, "tasks": true,
	"reset": true, "quit": true, "exit": true, "compact": true, "background": true,
}

// skillNames are built-in text-template skills (§4.J).
var skillNames = map[string]bool{
	"commit": true, "test": true, "review": true, "fix": true, "explain": true,
	"search": true, "init": true, "pr": true, "debug": true,
}

// Dispatcher routes `/`-prefixed input.
type Dispatcher struct {
	Mgr *manager.Manager
	Mem *memory.Memory
}

// Dispatch handles one line of input. If the line does not begin with '/',
// Handled is false and the caller should treat it as a goal.
func (d *Dispatcher) Dispatch(line string) Result {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return Result{Handled: false}
	}

	fields := strings.SplitN(trimmed[1:], " ", 2)
	name := strings.ToLower(fields[0])
	args := ""
	if len(fields) > 1 {
		args = strings.TrimSpace(fields[1])
	}

	if skillNames[name] {
		return d.expandSkill(name, args)
	}
	if !builtinCommands[name] {
		return Result{Handled: true, Message: fmt.Sprintf("unknown command /%s, type /help for a list", name)}
	}
	return d.runBuiltin(name, args)
}

func (d *Dispatcher) expandSkill(name, args string) Result {
	tmplText := prompt.LoadSkill(name)
	if tmplText == "" {
		return Result{Handled: true, Message: fmt.Sprintf("skill %q has no template", name)}
	}
	tmpl, err := template.New(name).Parse(tmplText)
	if err != nil {
		return Result{Handled: true, Message: fmt.Sprintf("skill %q template error: %v", name, err)}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Args string }{Args: args}); err != nil {
		return Result{Handled: true, Message: fmt.Sprintf("skill %q expansion error: %v", name, err)}
	}
	return Result{Handled: true, ExpandedGoal: buf.String()}
}

func (d *Dispatcher) runBuiltin(name, args string) Result {
	switch name {
	case "help":
		return Result{Handled: true, Message: helpText()}
	case "clear":
		d.Mem.Compact("", 0)
		return Result{Handled: true, Message: "conversation history cleared"}
	case "status":
		return Result{Handled: true, Message: statusText(d.Mgr.State())}
	case "tasks":
		return Result{Handled: true, Message: tasksText(d.Mgr.State())}
	case "reset":
		d.Mgr.Reset()
		return Result{Handled: true, Message: "task state reset"}
	case "quit", "exit":
		return Result{Handled: true, Quit: true}
	case "compact":
		omitted := d.Mem.Len() - 5
		if omitted < 0 {
			omitted = 0
		}
		d.Mem.Compact(fmt.Sprintf("(%d earlier turns omitted)", omitted), 5)
		return Result{Handled: true, Message: "history compacted to the last five turns"}
	case "background":
		return Result{Handled: true, Message: strings.TrimSpace("background task listing: " + args)}
	}
	return Result{Handled: true, Message: fmt.Sprintf("unimplemented command /%s", name)}
}

func helpText() string {
	return strings.Join([]string{
		"Built-in commands: /help /clear /status /tasks /reset /quit /compact /background",
		"Skills: /commit /test /review /fix /explain /search /init /pr /debug",
	}, "\n")
}

func statusText(s *state.State) string {
	return fmt.Sprintf("phase=%s goal=%q iteration=%d/%d confidence=%d(%s) risk=%s",
		s.Phase, s.Goal, s.Iteration, s.MaxIterations, s.Confidence, s.ConfidenceBand(), s.Risk)
}

func tasksText(s *state.State) string {
	if s.Plan == nil {
		return "(no plan)"
	}
	var sb strings.Builder
	for i, step := range s.Plan.Steps {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
	}
	return sb.String()
}
