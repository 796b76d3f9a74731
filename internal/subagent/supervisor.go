// Package subagent is the sub-agent supervisor (§4.H): a singleton map of
// concurrently running text-only model calls, each owning its own request.
// Grounded on internal/mcp.Manager's concurrency discipline — state changes
// guarded by a lock, network I/O (here, the model call) always performed
// outside it.
package subagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ephraim-dev/ephraim/internal/model"
)

// Kind is a sub-agent brief template selector (§4.H).
type Kind string

const (
	KindExplore  Kind = "EXPLORE"
	KindPlan     Kind = "PLAN"
	KindExecute  Kind = "EXECUTE"
	KindResearch Kind = "RESEARCH"
)

var kindBriefs = map[Kind]string{
	KindExplore:  "You are a sub-agent exploring a codebase to answer a focused question. Read only; report findings as plain text.",
	KindPlan:     "You are a sub-agent drafting a plan sketch for a sub-problem. Return a short ordered list of steps as plain text.",
	KindExecute:  "You are a sub-agent reasoning through how to execute a specific sub-task. Return a description of what you would do, as plain text.",
	KindResearch: "You are a sub-agent researching a question using the context you were given. Return a concise written answer.",
}

// Status is a sub-agent's lifecycle state (§3). Transitions are monotonic:
// PENDING -> RUNNING -> (COMPLETED | FAILED | CANCELLED).
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// SubAgent is a snapshot of one spawned sub-agent (§3).
type SubAgent struct {
	ID        string
	Kind      Kind
	Task      string
	Status    Status
	Result    string
	Err       string
	StartedAt time.Time
	EndedAt   time.Time
}

// Supervisor is the singleton sub-agent registry.
type Supervisor struct {
	mu       sync.Mutex
	agents   map[string]*SubAgent
	done     map[string]chan struct{}
	provider model.Provider
}

// NewSupervisor creates a Supervisor that dispatches sub-agent model calls
// through provider.
func NewSupervisor(provider model.Provider) *Supervisor {
	return &Supervisor{
		agents:   make(map[string]*SubAgent),
		done:     make(map[string]chan struct{}),
		provider: provider,
	}
}

// Spawn allocates an id, marks the sub-agent PENDING, and launches a
// concurrent worker that invokes the model once with task as the user
// message (§4.H).
func (s *Supervisor) Spawn(kind Kind, task string, contextText string) string {
	id := uuid.NewString()
	agent := &SubAgent{ID: id, Kind: kind, Task: task, Status: StatusPending, StartedAt: time.Now()}

	s.mu.Lock()
	s.agents[id] = agent
	done := make(chan struct{})
	s.done[id] = done
	s.mu.Unlock()

	go s.run(id, kind, task, contextText, done)
	return id
}

func (s *Supervisor) run(id string, kind Kind, task, contextText string, done chan struct{}) {
	defer close(done)

	s.mu.Lock()
	if a, ok := s.agents[id]; ok {
		a.Status = StatusRunning
	}
	s.mu.Unlock()

	system := kindBriefs[kind]
	if system == "" {
		system = kindBriefs[KindExplore]
	}
	messages := []model.Message{{Role: model.RoleSystem, Content: system}}
	if contextText != "" {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: "Context:\n" + contextText})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: task})

	reply, err := s.provider.Call(context.Background(), messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok || a.Status == StatusCancelled {
		return
	}
	a.EndedAt = time.Now()
	if err != nil {
		a.Status = StatusFailed
		a.Err = err.Error()
		return
	}
	a.Status = StatusCompleted
	a.Result = reply.Content
}

// Check returns a snapshot of the sub-agent's current state.
func (s *Supervisor) Check(id string) (SubAgent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return SubAgent{}, false
	}
	return *a, true
}

// Wait blocks up to timeout for the sub-agent to finish, returning its
// snapshot. A zero-value Status field of "" with ok=true and Status still
// RUNNING indicates a timeout.
func (s *Supervisor) Wait(id string, timeout time.Duration) (SubAgent, bool) {
	s.mu.Lock()
	done, ok := s.done[id]
	s.mu.Unlock()
	if !ok {
		return SubAgent{}, false
	}

	select {
	case <-done:
	case <-time.After(timeout):
	}
	return s.Check(id)
}

// WaitAll waits for every id, dividing total timeout equally (§4.H).
func (s *Supervisor) WaitAll(ids []string, total time.Duration) map[string]SubAgent {
	out := make(map[string]SubAgent, len(ids))
	if len(ids) == 0 {
		return out
	}
	per := total / time.Duration(len(ids))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			a, _ := s.Wait(id, per)
			mu.Lock()
			out[id] = a
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// Cancel transitions a sub-agent to CANCELLED without stopping the
// underlying model call — the eventual result is simply ignored (§4.H).
func (s *Supervisor) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("no such sub-agent %q", id)
	}
	if a.Status == StatusCompleted || a.Status == StatusFailed {
		return nil
	}
	a.Status = StatusCancelled
	a.EndedAt = time.Now()
	return nil
}

// List returns all sub-agents, optionally excluding terminal ones.
func (s *Supervisor) List(includeCompleted bool) []SubAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SubAgent
	for _, a := range s.agents {
		if !includeCompleted && isTerminal(a.Status) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Cleanup evicts the oldest terminal sub-agents beyond max capacity.
func (s *Supervisor) Cleanup(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.agents) <= max {
		return 0
	}

	var terminal []*SubAgent
	for _, a := range s.agents {
		if isTerminal(a.Status) {
			terminal = append(terminal, a)
		}
	}
	excess := len(s.agents) - max
	evicted := 0
	for evicted < excess && evicted < len(terminal) {
		oldest := terminal[0]
		for _, a := range terminal {
			if a.EndedAt.Before(oldest.EndedAt) {
				oldest = a
			}
		}
		delete(s.agents, oldest.ID)
		delete(s.done, oldest.ID)
		for i, a := range terminal {
			if a.ID == oldest.ID {
				terminal = append(terminal[:i], terminal[i+1:]...)
				break
			}
		}
		evicted++
	}
	return evicted
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
