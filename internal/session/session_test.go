package session

import (
	"context"
	"testing"

	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
)

func newTestManager() *Manager {
	return &Manager{sessions: make(map[string]*Session), registry: dsl.NewRegistry()}
}

func TestGetStatusUnknownSession(t *testing.T) {
	m := newTestManager()
	if _, err := m.GetStatus("missing"); err == nil {
		t.Fatal("expected an error for an unknown session id")
	}
}

func TestStartSessionRejectsWithoutLLMCollaborator(t *testing.T) {
	m := newTestManager()
	if _, err := m.StartSession("click the buy button", "", 0, nil); err == nil {
		t.Fatal("expected an error when no CallLLM collaborator is configured")
	}
}

func TestStartSessionRejectsEmptyCommand(t *testing.T) {
	m := newTestManager()
	m.llm = func(ctx context.Context, prompt string) (string, error) { return "{}", nil }
	if _, err := m.StartSession("   ", "", 0, nil); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestAddInstructionRejectsUnknownSession(t *testing.T) {
	m := newTestManager()
	if status, err := m.AddInstruction("missing", "keep going"); err == nil || status != "not_found" {
		t.Fatalf("expected not_found for an unknown session id, got status=%q err=%v", status, err)
	}
}

func TestAddInstructionRejectsEmptyText(t *testing.T) {
	m := newTestManager()
	sess := &Session{id: "s1", state: StatePending, doneCh: make(chan struct{})}
	m.sessions["s1"] = sess

	if status, err := m.AddInstruction("s1", "  "); err == nil || status != "invalid" {
		t.Fatalf("expected invalid for empty instruction text, got status=%q err=%v", status, err)
	}
}

func TestAddInstructionRejectsTerminalSession(t *testing.T) {
	m := newTestManager()
	sess := &Session{id: "s1", state: StateCompleted, doneCh: make(chan struct{})}
	m.sessions["s1"] = sess

	if status, err := m.AddInstruction("s1", "keep going"); err == nil || status != "not_running" {
		t.Fatalf("expected not_running when appending to a terminal session, got status=%q err=%v", status, err)
	}
}

func TestAddInstructionAcceptsPendingSession(t *testing.T) {
	m := newTestManager()
	sess := &Session{id: "s1", state: StatePending, doneCh: make(chan struct{})}
	m.sessions["s1"] = sess

	status, err := m.AddInstruction("s1", "also check the cart total")
	if err != nil {
		t.Fatalf("AddInstruction: %v", err)
	}
	if status != "accepted" {
		t.Fatalf("expected accepted, got %q", status)
	}
	if len(sess.pending) != 1 || sess.pending[0] != "also check the cart total" {
		t.Fatalf("expected 1 pending instruction, got %v", sess.pending)
	}
}

func TestCancelSessionNoOpOnTerminalState(t *testing.T) {
	m := newTestManager()
	sess := &Session{id: "s1", state: StateFailed, doneCh: make(chan struct{}), cancel: func() {}}
	m.sessions["s1"] = sess

	if err := m.CancelSession("s1"); err != nil {
		t.Fatalf("CancelSession on a terminal session should be a no-op, got %v", err)
	}
	if sess.state != StateFailed {
		t.Fatalf("state should remain unchanged, got %s", sess.state)
	}
}

func TestCancelSessionTransitionsOnDone(t *testing.T) {
	m := newTestManager()
	doneCh := make(chan struct{})
	cancelled := false
	sess := &Session{
		id:     "s1",
		state:  StateRunning,
		doneCh: doneCh,
		cancel: func() { cancelled = true; close(doneCh) },
	}
	m.sessions["s1"] = sess

	if err := m.CancelSession("s1"); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancel() to be invoked")
	}
}

func TestParsePlanAcceptsStructuredExplanationPlan(t *testing.T) {
	m := newTestManager()
	raw := `{"explanation":"clicking buy","plan":{"actions":[{"type":"click","selector":{"css":"#buy"}}]}}`
	plan, err := m.parsePlan(raw)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Type != dsl.ActionClick {
		t.Fatalf("expected one click action, got %+v", plan.Actions)
	}
}

func TestParsePlanAcceptsBareActions(t *testing.T) {
	m := newTestManager()
	raw := `{"actions":[{"type":"navigate","url":"https://example.com"}]}`
	plan, err := m.parsePlan(raw)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Type != dsl.ActionNavigate {
		t.Fatalf("expected one navigate action, got %+v", plan.Actions)
	}
}

func TestParsePlanRejectsNonJSON(t *testing.T) {
	m := newTestManager()
	if _, err := m.parsePlan("not json at all"); err == nil {
		t.Fatal("expected an error for a non-JSON CallLLM response")
	}
}

func TestPopPendingDrainsInOrder(t *testing.T) {
	sess := &Session{pending: []string{"first", "second"}}
	instr, ok := sess.popPending()
	if !ok || instr != "first" {
		t.Fatalf("expected first pending instruction, got %q ok=%v", instr, ok)
	}
	instr, ok = sess.popPending()
	if !ok || instr != "second" {
		t.Fatalf("expected second pending instruction, got %q ok=%v", instr, ok)
	}
	if _, ok := sess.popPending(); ok {
		t.Fatal("expected popPending to report empty once drained")
	}
}
