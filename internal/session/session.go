// Package session implements the Session Manager (C8): the
// command/model/max_steps agent-loop contract, per-tab mutex
// serialization, and cooperative cancellation (spec §4.8/§5). Grounded on
// original_source/agent/browser_use_runner.py's BrowserUseSession
// (command, model_name, max_steps, server-generated session_id, a
// pending→running→terminal status machine, and a step-by-step agent loop
// driven by an injected LLM) generalized from that file's direct
// browser_use.Agent.run() call into a CallLLM/ConversationHistory
// collaborator boundary (spec §1's "LLM call-outs... the spec assumes a
// function CallLLM(prompt) → {explanation, plan}") driving this module's
// own C7 executor instead.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
	"github.com/kota-kawa/web-agent01-sub000/internal/browser"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
	"github.com/kota-kawa/web-agent01-sub000/internal/executor"
	"github.com/kota-kawa/web-agent01-sub000/internal/extract"
)

// State is one of the session lifecycle states (spec §4.8/§5).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// cancelAwaitTimeout is the grace period CancelSession waits for the
// in-flight step to observe cancellation before forcing the state
// transition anyway (spec §4.8/§5 "cooperative cancel... awaits up to 10s").
const cancelAwaitTimeout = 10 * time.Second

// defaultMaxSteps is the step budget used when a caller's StartSession
// omits max_steps. It is a fixed value: the MAX_STEPS setting loaded by
// internal/config (default 40) is not consulted here.
const defaultMaxSteps = 25

// Status is the externally visible session status (spec §6
// GET /browser-use/session/{id}).
type Status struct {
	SessionID string                `json:"session_id"`
	State     State                 `json:"state"`
	Command   string                `json:"command"`
	Model     string                `json:"model"`
	Steps     []*executor.RunResult `json:"steps,omitempty"`
	Result    *executor.RunResult   `json:"result,omitempty"`
	Error     *apierr.Error         `json:"error,omitempty"`
}

// Session is one natural-language command's agent loop: StartSession's
// command/model/max_steps drive repeated CallLLM-then-execute cycles,
// against the pending-instruction queue AddInstruction appends to, until
// the executor reports is_done or max_steps is exhausted.
type Session struct {
	mu       sync.Mutex
	id       string
	command  string
	model    string
	maxSteps int
	state    State
	steps    []*executor.RunResult
	pending  []string
	result   *executor.RunResult
	err      *apierr.Error
	cancel   context.CancelFunc
	doneCh   chan struct{}
	tabMutex sync.Mutex
}

func (s *Session) popPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	instr := s.pending[0]
	s.pending = s.pending[1:]
	return instr, true
}

// Manager owns every active Session, the shared browser Connector, and the
// external collaborator boundaries spec §1 calls out as "out of scope...
// external collaborators with defined interfaces only": CallLLM turns a
// command into a plan, ConversationHistory persists the multi-turn
// transcript. Either collaborator may be nil for a deployment that doesn't
// wire one in; a nil llm means StartSession fails fast since there would be
// nothing to turn a command into a plan.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	connector *browser.Connector
	executor  *executor.Executor
	registry  *dsl.Registry
	llm       extract.CallLLM
	history   extract.ConversationHistory
	logger    zerolog.Logger
}

// New builds a Manager bound to the shared connector, executor, DSL
// registry, and the LLM/history collaborators a deployment wires in.
func New(connector *browser.Connector, exec *executor.Executor, registry *dsl.Registry, llm extract.CallLLM, history extract.ConversationHistory, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		connector: connector,
		executor:  exec,
		registry:  registry,
		llm:       llm,
		history:   history,
		logger:    logger,
	}
}

// StartSession enqueues a new agent-loop run for command and returns
// immediately with a server-generated session_id (spec §4.8 "enqueue a new
// run; returns immediately", spec §6 session_id is always server-minted).
func (m *Manager) StartSession(command, model string, maxSteps int, conversationContext []extract.Entry) (string, error) {
	if m.llm == nil {
		return "", apierr.New(apierr.CodeExecutionError, "no CallLLM collaborator configured for this deployment")
	}
	if strings.TrimSpace(command) == "" {
		return "", apierr.New(apierr.CodeValidation, "command is required")
	}
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		id:       sessionID,
		command:  command,
		model:    model,
		maxSteps: maxSteps,
		state:    StatePending,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	go m.run(ctx, sess, conversationContext)
	return sessionID, nil
}

func (m *Manager) run(ctx context.Context, sess *Session, conversationContext []extract.Entry) {
	defer close(sess.doneCh)

	sess.tabMutex.Lock()
	defer sess.tabMutex.Unlock()

	sess.mu.Lock()
	sess.state = StateRunning
	command, model, maxSteps := sess.command, sess.model, sess.maxSteps
	sess.mu.Unlock()

	history := append([]extract.Entry{}, conversationContext...)
	if m.history != nil {
		if loaded, err := m.history.Load(ctx, sess.id); err == nil {
			history = append(history, loaded...)
		}
	}
	history = append(history, extract.Entry{Role: "user", Content: command})
	m.appendHistory(ctx, sess.id, extract.Entry{Role: "user", Content: command})

	var last *executor.RunResult
	for step := 0; step < maxSteps; step++ {
		select {
		case <-ctx.Done():
			m.finish(sess, StateCancelled, last, nil)
			return
		default:
		}

		if instr, ok := sess.popPending(); ok {
			history = append(history, extract.Entry{Role: "user", Content: instr})
			m.appendHistory(ctx, sess.id, extract.Entry{Role: "user", Content: instr})
		}

		prompt := buildPrompt(command, model, step, history)
		raw, err := m.llm(ctx, prompt)
		if err != nil {
			m.finish(sess, StateFailed, last, apierr.Wrap(apierr.CodeExecutionError, "CallLLM failed", err))
			return
		}
		history = append(history, extract.Entry{Role: "assistant", Content: raw})
		m.appendHistory(ctx, sess.id, extract.Entry{Role: "assistant", Content: raw})

		plan, perr := m.parsePlan(raw)
		if perr != nil {
			m.finish(sess, StateFailed, last, apierr.Wrap(apierr.CodeValidation, "CallLLM response did not contain a valid plan", perr))
			return
		}

		runID := fmt.Sprintf("%s-step%02d", sess.id, step)
		result, rerr := m.executor.Run(ctx, dsl.RunRequest{RunID: runID, Plan: plan})
		if rerr != nil {
			m.finish(sess, StateFailed, last, apierr.Wrap(apierr.CodeExecutionError, "executor run failed", rerr))
			return
		}
		last = result

		sess.mu.Lock()
		sess.steps = append(sess.steps, result)
		sess.mu.Unlock()

		select {
		case <-ctx.Done():
			m.finish(sess, StateCancelled, last, nil)
			return
		default:
		}

		if result.Error != nil {
			m.finish(sess, StateFailed, last, result.Error)
			return
		}
		if result.IsDone {
			break
		}
	}

	m.finish(sess, StateCompleted, last, nil)
}

func (m *Manager) finish(sess *Session, state State, result *executor.RunResult, err *apierr.Error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.state = state
	sess.result = result
	sess.err = err
}

func (m *Manager) appendHistory(ctx context.Context, sessionID string, entry extract.Entry) {
	if m.history == nil {
		return
	}
	if err := m.history.Append(ctx, sessionID, entry); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("session: conversation history append failed")
	}
}

// parsePlan decodes a CallLLM response into a dsl.Plan. The collaborator is
// expected to respond with {"explanation":"...", "plan":{...}} per spec
// §1's CallLLM(prompt) → {explanation, plan} contract, or a bare
// plan/actions payload in the canonical or legacy wire form C2 already
// accepts.
func (m *Manager) parsePlan(raw string) (dsl.Plan, error) {
	var structured struct {
		Explanation string         `json:"explanation"`
		Plan        map[string]any `json:"plan"`
		Actions     []any          `json:"actions"`
	}
	if err := json.Unmarshal([]byte(raw), &structured); err == nil && (structured.Plan != nil || structured.Actions != nil) {
		payload := map[string]any{}
		if structured.Plan != nil {
			payload["plan"] = structured.Plan
		}
		if structured.Actions != nil {
			payload["actions"] = structured.Actions
		}
		runReq, perr := dsl.ParseRunRequest(m.registry, payload)
		if perr != nil {
			return dsl.Plan{}, perr
		}
		return runReq.Plan, nil
	}

	var bare map[string]any
	if err := json.Unmarshal([]byte(raw), &bare); err != nil {
		return dsl.Plan{}, fmt.Errorf("CallLLM response is not valid JSON: %w", err)
	}
	runReq, perr := dsl.ParseRunRequest(m.registry, bare)
	if perr != nil {
		return dsl.Plan{}, perr
	}
	return runReq.Plan, nil
}

func buildPrompt(command, model string, step int, history []extract.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "model: %s\ntask: %s\nstep: %d\nhistory:\n", model, command, step)
	for _, e := range history {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	return b.String()
}

// AddInstruction appends a follow-up natural-language instruction to a
// still-live session's pending queue; the agent loop consults it before its
// next CallLLM invocation (spec §4.8 "append-only semantics", spec §6
// POST /session/{id}/instruction).
func (m *Manager) AddInstruction(sessionID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "invalid", apierr.New(apierr.CodeValidation, "instruction text is required")
	}

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return "not_found", apierr.New(apierr.CodeValidation, fmt.Sprintf("session %q not found", sessionID))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != StateRunning && sess.state != StatePending {
		return "not_running", apierr.New(apierr.CodeValidation, fmt.Sprintf("session %q is not running (%s)", sessionID, sess.state))
	}
	sess.pending = append(sess.pending, text)
	return "accepted", nil
}

// GetStatus returns the current externally visible status for a session.
func (m *Manager) GetStatus(sessionID string) (*Status, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, apierr.New(apierr.CodeValidation, fmt.Sprintf("session %q not found", sessionID))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &Status{
		SessionID: sess.id,
		State:     sess.state,
		Command:   sess.command,
		Model:     sess.model,
		Steps:     append([]*executor.RunResult{}, sess.steps...),
		Result:    sess.result,
		Error:     sess.err,
	}, nil
}

// CancelSession requests cooperative cancellation and waits up to
// cancelAwaitTimeout for the run goroutine to observe it before returning,
// per spec §5.
func (m *Manager) CancelSession(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return apierr.New(apierr.CodeValidation, fmt.Sprintf("session %q not found", sessionID))
	}

	sess.mu.Lock()
	if sess.state == StateCompleted || sess.state == StateFailed || sess.state == StateCancelled {
		sess.mu.Unlock()
		return nil
	}
	sess.mu.Unlock()

	sess.cancel()

	select {
	case <-sess.doneCh:
	case <-time.After(cancelAwaitTimeout):
		sess.mu.Lock()
		sess.state = StateCancelled
		sess.mu.Unlock()
		m.logger.Warn().Str("session_id", sessionID).Msg("session: cancellation grace period exceeded, forcing cancelled state")
	}
	return nil
}

// EnsureSharedBrowser delegates to the shared Connector, letting session
// callers warm the browser up before StartSession (spec §4.1/§4.8).
func (m *Manager) EnsureSharedBrowser(ctx context.Context, overrideCandidates []string) (*browser.WarmupResult, error) {
	return m.connector.EnsureSharedBrowser(ctx, overrideCandidates)
}
