package subagent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ephraim-dev/ephraim/internal/model"
)

type fakeProvider struct {
	reply string
	err   error
	delay time.Duration
}

func (f *fakeProvider) Call(ctx context.Context, messages []model.Message) (model.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return model.Message{}, f.err
	}
	return model.Message{Role: model.RoleAssistant, Content: f.reply}, nil
}
func (f *fakeProvider) CallStream(ctx context.Context, messages []model.Message, onChunk model.StreamCallback) (model.Message, error) {
	return f.Call(ctx, messages)
}
func (f *fakeProvider) Name() string { return "fake" }

func TestSpawnAndWaitCompletes(t *testing.T) {
	sup := NewSupervisor(&fakeProvider{reply: "found it in main.go"})
	id := sup.Spawn(KindExplore, "where is main defined?", "")

	a, ok := sup.Wait(id, time.Second)
	if !ok {
		t.Fatal("expected sub-agent to exist")
	}
	if a.Status != StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", a.Status)
	}
	if a.Result != "found it in main.go" {
		t.Errorf("Result = %q", a.Result)
	}
}

func TestSpawnFailurePropagates(t *testing.T) {
	sup := NewSupervisor(&fakeProvider{err: fmt.Errorf("boom")})
	id := sup.Spawn(KindResearch, "task", "")

	a, _ := sup.Wait(id, time.Second)
	if a.Status != StatusFailed {
		t.Fatalf("Status = %s, want FAILED", a.Status)
	}
}

func TestWaitTimesOutWhileRunning(t *testing.T) {
	sup := NewSupervisor(&fakeProvider{reply: "slow", delay: 100 * time.Millisecond})
	id := sup.Spawn(KindExplore, "task", "")

	a, ok := sup.Wait(id, 10*time.Millisecond)
	if !ok {
		t.Fatal("expected sub-agent to exist")
	}
	if a.Status != StatusRunning && a.Status != StatusPending {
		t.Errorf("expected still-running snapshot, got %s", a.Status)
	}
}

func TestCancelIsMonotonic(t *testing.T) {
	sup := NewSupervisor(&fakeProvider{reply: "done", delay: 50 * time.Millisecond})
	id := sup.Spawn(KindExplore, "task", "")

	if err := sup.Cancel(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := sup.Check(id)
	if a.Status != StatusCancelled {
		t.Fatalf("Status = %s, want CANCELLED", a.Status)
	}

	time.Sleep(100 * time.Millisecond)
	a, _ = sup.Check(id)
	if a.Status != StatusCancelled {
		t.Errorf("cancelled sub-agent should stay CANCELLED, got %s", a.Status)
	}
}

func TestListExcludesCompletedByDefault(t *testing.T) {
	sup := NewSupervisor(&fakeProvider{reply: "x"})
	id := sup.Spawn(KindExplore, "task", "")
	sup.Wait(id, time.Second)

	if len(sup.List(false)) != 0 {
		t.Error("expected no non-terminal sub-agents listed")
	}
	if len(sup.List(true)) != 1 {
		t.Error("expected the completed sub-agent to be listed when included")
	}
}

func TestWaitAllDividesBudget(t *testing.T) {
	sup := NewSupervisor(&fakeProvider{reply: "x"})
	id1 := sup.Spawn(KindExplore, "a", "")
	id2 := sup.Spawn(KindExplore, "b", "")

	results := sup.WaitAll([]string{id1, id2}, 200*time.Millisecond)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for id, a := range results {
		if a.Status != StatusCompleted {
			t.Errorf("sub-agent %s status = %s, want COMPLETED", id, a.Status)
		}
	}
}
