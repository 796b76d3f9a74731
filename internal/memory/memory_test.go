package memory

import "testing"

func TestAppendTrimsToMaxTurns(t *testing.T) {
	m := New(2)
	m.Append(Turn{UserMsg: "one"})
	m.Append(Turn{UserMsg: "two"})
	m.Append(Turn{UserMsg: "three"})

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	recent := m.RecentMessages(2)
	if recent[0].UserMsg != "two" || recent[1].UserMsg != "three" {
		t.Errorf("unexpected recent turns: %+v", recent)
	}
}

func TestRecentMessagesBeyondLength(t *testing.T) {
	m := New(10)
	m.Append(Turn{UserMsg: "only"})

	recent := m.RecentMessages(5)
	if len(recent) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(recent))
	}
}

func TestLastFailure(t *testing.T) {
	m := New(10)
	m.Append(Turn{UserMsg: "a", Phase: "COMPLETED", Success: true})
	m.Append(Turn{UserMsg: "b", Phase: "EXECUTING", Success: false})
	m.Append(Turn{UserMsg: "c", Phase: "COMPLETED", Success: true})

	f := m.LastFailure()
	if f == nil || f.UserMsg != "b" {
		t.Errorf("LastFailure() = %+v, want turn b", f)
	}
}

func TestLastFailureNoneFound(t *testing.T) {
	m := New(10)
	m.Append(Turn{UserMsg: "a", Success: true})
	m.Append(Turn{UserMsg: "b", Success: true})

	if f := m.LastFailure(); f != nil {
		t.Errorf("LastFailure() = %+v, want nil", f)
	}
}

func TestCompact(t *testing.T) {
	m := New(10)
	for _, msg := range []string{"a", "b", "c", "d"} {
		m.Append(Turn{UserMsg: msg})
	}
	n := m.Compact("summary of a,b", 2)
	if n != 2 {
		t.Fatalf("Compact() = %d, want 2", n)
	}
	if m.Summary != "summary of a,b" {
		t.Errorf("Summary = %q", m.Summary)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}
