// Package executor implements the Run Executor (C7): plan augmentation →
// sequential execution of an already parsed plan with page-stability
// waits, catalog refresh after DOM-mutating steps, retry-with-backoff,
// per-step screenshots, and a structured event log (spec §4.7/§5/§6).
// Run performs no dry-run resolution pass and does not rebind stale
// ordinal indices (catalog.Rebind is not called here). Grounded on cloudrouter/
// cmd/worker/main.go's handleBrowserCommand loop (one command at a time,
// logged, retried on transient CDP errors) generalized from a single
// command dispatch into the spec's full typed-plan pipeline.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
	"github.com/kota-kawa/web-agent01-sub000/internal/browser"
	"github.com/kota-kawa/web-agent01-sub000/internal/catalog"
	"github.com/kota-kawa/web-agent01-sub000/internal/config"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
	"github.com/kota-kawa/web-agent01-sub000/internal/interact"
	"github.com/kota-kawa/web-agent01-sub000/internal/resolver"
	"github.com/kota-kawa/web-agent01-sub000/internal/stability"
)

// Executor drives one run's plan against the shared browser connection.
type Executor struct {
	connector *browser.Connector
	cfg       *config.Config
	logger    zerolog.Logger

	stability  *stability.Helpers
	primitives *interact.Primitives
	catalog    *catalog.Cache
}

// New builds an Executor bound to a shared Connector.
func New(connector *browser.Connector, cfg *config.Config, logger zerolog.Logger) *Executor {
	return &Executor{
		connector:  connector,
		cfg:        cfg,
		logger:     logger,
		stability:  stability.New(logger),
		primitives: interact.New(logger),
		catalog:    catalog.NewCache(),
	}
}

// StepResult records one executed action's outcome.
type StepResult struct {
	Index      int      `json:"index"`
	ActionType string   `json:"action_type"`
	Status     string   `json:"status"`
	Attempts   int      `json:"attempts"`
	Warnings   []string `json:"warnings,omitempty"`
	ErrorCode  string   `json:"error_code,omitempty"`
}

// Observation is the page-state summary spec §6's run result envelope
// returns alongside success/error.
type Observation struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	CatalogVersion string `json:"catalog_version,omitempty"`
	NavDetected    bool   `json:"nav_detected"`
}

// RunResult is the executor's full outcome for one RunRequest.
type RunResult struct {
	RunID       string       `json:"run_id"`
	Success     bool         `json:"success"`
	Steps       []StepResult `json:"steps"`
	Warnings    []string     `json:"warnings,omitempty"`
	Observation Observation  `json:"observation"`
	IsDone      bool         `json:"is_done"`
	Complete    bool         `json:"complete"`
	Error       *apierr.Error `json:"error,omitempty"`
}

// Run executes req.Plan.Actions in order: augment (implicit waits after
// ordinal_index clicks), then sequentially execute with stability waits,
// retry, screenshots, and event logging (spec §4.7).
func (e *Executor) Run(ctx context.Context, req dsl.RunRequest) (*RunResult, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	events, err := NewEventWriter(e.cfg.RunsDir, runID)
	if err != nil {
		return nil, err
	}
	defer events.Close()

	actions := augmentPlan(req.Plan.Actions)
	result := &RunResult{RunID: runID}

	cdpCtx, err := e.connector.Context(ctx)
	if err != nil {
		result.Error = apierr.Wrap(apierr.CodeSharedBrowserUnavailable, "connector unavailable", err)
		return result, nil
	}

	for i, action := range actions {
		select {
		case <-ctx.Done():
			events.Write(StructuredEvent{RunID: runID, StepIndex: i, ActionType: string(action.Type), Status: "skipped", ErrorMessage: "run cancelled"})
			result.Error = apierr.Wrap(apierr.CodeExecutionError, "run cancelled", ctx.Err())
			result.Success = false
			result.Observation = e.observe(cdpCtx)
			return result, nil
		default:
		}

		if action.Type == dsl.ActionStop {
			events.Write(StructuredEvent{RunID: runID, StepIndex: i, ActionType: string(action.Type), Status: "skipped"})
			break
		}

		step, stepErr := e.executeWithRetry(cdpCtx, runID, i, action, events)
		result.Steps = append(result.Steps, step)
		result.Warnings = append(result.Warnings, step.Warnings...)

		if stepErr != nil {
			apiErr, _ := apierr.As(stepErr)
			if apiErr == nil {
				apiErr = apierr.Wrap(apierr.CodeExecutionError, "unclassified executor error", stepErr)
			}
			result.Error = apiErr
			WriteErrorReport(e.cfg.RunsDir, runID, ErrorReport{
				RunID: runID, StepIndex: i, ActionType: string(action.Type),
				ErrorCode: string(apiErr.Code), ErrorMessage: apiErr.Message, Attempts: step.Attempts,
			})
			break
		}
	}

	result.Success = result.Error == nil
	result.IsDone = result.Success
	result.Complete = result.IsDone
	result.Observation = e.observe(cdpCtx)
	return result, nil
}

// augmentPlan inserts an implicit short wait after any click whose
// selector targets an ordinal_index, since a DOM mutation following such
// a click is the likeliest source of the catalog-race warning validate.go
// detects (spec §4.4/§4.7 "implicit wait insertion").
func augmentPlan(actions []dsl.Action) []dsl.Action {
	out := make([]dsl.Action, 0, len(actions)+2)
	for _, a := range actions {
		out = append(out, a)
		if a.Type == dsl.ActionClick && a.UsesOrdinalIndex() {
			timeout := 300
			out = append(out, dsl.Action{
				Type:    dsl.ActionWait,
				Version: 1,
				Wait:    &dsl.WaitCondition{ForTimeoutMs: &timeout},
			})
		}
	}
	return out
}

// retry policy constants (spec §4.7): base 0.5s, cap 5s, jitter ±1s.
func (e *Executor) backoff(attempt int) time.Duration {
	base := e.cfg.RetryBaseWait
	cap_ := e.cfg.RetryMaxWait
	wait := base * time.Duration(1<<uint(attempt-1))
	if wait > cap_ {
		wait = cap_
	}
	jitterRange := e.cfg.RetryJitter
	if jitterRange <= 0 {
		return wait
	}
	delta := time.Duration(rand.Int63n(int64(2*jitterRange))) - jitterRange
	wait += delta
	if wait < 0 {
		wait = 0
	}
	if wait > cap_ {
		wait = cap_
	}
	return wait
}

func (e *Executor) executeWithRetry(cdpCtx context.Context, runID string, index int, action dsl.Action, events *EventWriter) (StepResult, error) {
	step := StepResult{Index: index, ActionType: string(action.Type)}
	maxRetries := e.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		step.Attempts = attempt
		events.Write(StructuredEvent{RunID: runID, StepIndex: index, ActionType: string(action.Type), Status: "started", AttemptNum: attempt})

		start := time.Now()
		warnings, err := e.executeStep(cdpCtx, runID, index, action)
		step.Warnings = append(step.Warnings, warnings...)
		duration := time.Since(start).Milliseconds()

		if err == nil {
			step.Status = "succeeded"
			events.Write(StructuredEvent{RunID: runID, StepIndex: index, ActionType: string(action.Type), Status: "succeeded", AttemptNum: attempt, DurationMs: duration, Warnings: warnings})
			return step, nil
		}

		lastErr = err
		apiErr, ok := apierr.As(err)
		retryable := !ok || apiErr.Retryable()
		code := ""
		if ok {
			code = string(apiErr.Code)
		}

		if !retryable || attempt == maxRetries {
			step.Status = "failed"
			step.ErrorCode = code
			events.Write(StructuredEvent{RunID: runID, StepIndex: index, ActionType: string(action.Type), Status: "failed", AttemptNum: attempt, DurationMs: duration, ErrorCode: code, ErrorMessage: err.Error()})
			return step, err
		}

		events.Write(StructuredEvent{RunID: runID, StepIndex: index, ActionType: string(action.Type), Status: "retrying", AttemptNum: attempt, DurationMs: duration, ErrorCode: code, ErrorMessage: err.Error()})
		time.Sleep(e.backoff(attempt))
	}
	return step, lastErr
}

// executeStep dispatches one action after a stability wait; a DOM-mutating
// action that succeeds is followed by a second stability wait and a catalog
// refresh. Every step ends with a screenshot (spec §4.5/§6).
func (e *Executor) executeStep(cdpCtx context.Context, runID string, index int, action dsl.Action) ([]string, error) {
	e.stability.StabilizePage(context.Background(), cdpCtx, stability.DefaultStabilizeTimeout)

	var warnings []string
	var err error

	switch action.Type {
	case dsl.ActionNavigate:
		err = e.doNavigate(cdpCtx, action.URL)
	case dsl.ActionClick:
		warnings, err = e.doClick(cdpCtx, action.Selector)
	case dsl.ActionHover:
		warnings, err = e.doHover(cdpCtx, action.Selector)
	case dsl.ActionType_:
		warnings, err = e.doType(cdpCtx, action)
	case dsl.ActionSelect:
		warnings, err = e.doSelect(cdpCtx, action)
	case dsl.ActionPressKey:
		warnings, err = e.primitivesPressKey(cdpCtx, action)
	case dsl.ActionWait:
		err = e.doWait(cdpCtx, action.Wait)
	case dsl.ActionScroll:
		err = e.doScroll(cdpCtx, action)
	case dsl.ActionScrollToText:
		err = e.doScrollToText(cdpCtx, action.ScrollText)
	case dsl.ActionRefreshCatalog:
		err = e.doRefreshCatalog(cdpCtx)
	case dsl.ActionScreenshot:
		// handled uniformly below regardless of action type.
	case dsl.ActionAssert:
		err = e.doAssert(cdpCtx, action)
	case dsl.ActionEvalJS:
		err = e.doEvalJS(cdpCtx, action.Script)
	case dsl.ActionClickBlankArea:
		err = e.doClickBlankArea(cdpCtx)
	case dsl.ActionClosePopup:
		err = e.doClosePopup(cdpCtx)
	case dsl.ActionSwitchTab, dsl.ActionFocusIframe, dsl.ActionExtract:
		err = apierr.New(apierr.CodeUnsupportedAction, fmt.Sprintf("%s not yet wired to a live browser primitive", action.Type))
	default:
		err = apierr.New(apierr.CodeUnsupportedAction, string(action.Type))
	}

	if action.IsDOMMutating() && err == nil {
		e.stability.StabilizePage(context.Background(), cdpCtx, stability.DefaultStabilizeTimeout)
		_ = e.doRefreshCatalog(cdpCtx)
	}

	e.captureScreenshot(cdpCtx, runID, index)
	return warnings, err
}

func (e *Executor) doNavigate(cdpCtx context.Context, rawURL string) error {
	if len(e.cfg.AllowedDomains) > 0 {
		if !hostAllowed(rawURL, e.cfg.AllowedDomains) {
			return apierr.New(apierr.CodeValidation, "navigate target host is not in ALLOWED_DOMAINS").
				WithDetails(map[string]any{"reason": "DOMAIN_NOT_ALLOWED", "url": rawURL})
		}
	}
	runCtx, cancel := context.WithTimeout(cdpCtx, e.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(rawURL)); err != nil {
		return apierr.Wrap(apierr.CodeNavigationTimeout, "navigate failed", err)
	}
	e.connector.SetLastVisited(rawURL)
	return nil
}

// hostAllowed implements the domain-allowlist supplemented feature
// (SPEC_FULL.md §SUPPLEMENTED FEATURES #2): a navigate target's host must
// end in one of the configured suffixes.
func hostAllowed(rawURL string, allowed []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true // non-navigable/relative targets (about:blank etc.) are not domain-checked.
	}
	host := u.Hostname()
	for _, suffix := range allowed {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func (e *Executor) resolveSelector(cdpCtx context.Context, sel *dsl.Selector) (*resolver.ResolvedNode, error) {
	if sel == nil {
		return nil, apierr.New(apierr.CodeValidation, "selector is required")
	}
	if sel.OrdinalIndex != nil && !e.cfg.IndexModeEnabled {
		return nil, apierr.New(apierr.CodeUnsupportedAction, "ordinal_index targeting is disabled (INDEX_MODE=false)")
	}
	r := resolver.New(resolver.NewChromedpQuerier(cdpCtx), resolver.NewStableNodeStore())
	node, err := r.Resolve(cdpCtx, *sel)
	if err != nil {
		if _, ok := err.(*resolver.ResolutionFailedError); ok {
			return nil, apierr.Wrap(apierr.CodeElementNotFound, err.Error(), err)
		}
		return nil, apierr.Wrap(apierr.CodeElementNotFound, "selector resolution error", err)
	}
	return node, nil
}

func (e *Executor) doClick(cdpCtx context.Context, sel *dsl.Selector) ([]string, error) {
	node, err := e.resolveSelector(cdpCtx, sel)
	if err != nil {
		return nil, err
	}
	outcome, err := e.primitives.Click(cdpCtx, node.DOMPath)
	if outcome != nil {
		return outcome.Warnings, err
	}
	return nil, err
}

func (e *Executor) doHover(cdpCtx context.Context, sel *dsl.Selector) ([]string, error) {
	node, err := e.resolveSelector(cdpCtx, sel)
	if err != nil {
		return nil, err
	}
	outcome, err := e.primitives.Hover(cdpCtx, node.DOMPath)
	if outcome != nil {
		return outcome.Warnings, err
	}
	return nil, err
}

func (e *Executor) doType(cdpCtx context.Context, action dsl.Action) ([]string, error) {
	node, err := e.resolveSelector(cdpCtx, action.Selector)
	if err != nil {
		return nil, err
	}
	outcome, err := e.primitives.Fill(cdpCtx, node.DOMPath, action.Text)
	if err != nil {
		if outcome != nil {
			return outcome.Warnings, err
		}
		return nil, err
	}
	if action.PressEnter {
		if _, pErr := e.primitives.PressKey(cdpCtx, []string{"Enter"}, "active_element"); pErr != nil {
			return outcome.Warnings, pErr
		}
	}
	return outcome.Warnings, nil
}

func (e *Executor) doSelect(cdpCtx context.Context, action dsl.Action) ([]string, error) {
	node, err := e.resolveSelector(cdpCtx, action.Selector)
	if err != nil {
		return nil, err
	}
	outcome, err := e.primitives.Select(cdpCtx, node.DOMPath, action.ValueOrLabel)
	if outcome != nil {
		return outcome.Warnings, err
	}
	return nil, err
}

func (e *Executor) primitivesPressKey(cdpCtx context.Context, action dsl.Action) ([]string, error) {
	outcome, err := e.primitives.PressKey(cdpCtx, action.Keys, action.Scope)
	if outcome != nil {
		return outcome.Warnings, err
	}
	return nil, err
}

func (e *Executor) doWait(cdpCtx context.Context, w *dsl.WaitCondition) error {
	if w == nil {
		return apierr.New(apierr.CodeValidation, "wait requires a condition")
	}
	switch w.Kind() {
	case "for_timeout":
		time.Sleep(time.Duration(*w.ForTimeoutMs) * time.Millisecond)
		return nil
	case "for_selector":
		timeout := time.Duration(w.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		runCtx, cancel := context.WithTimeout(cdpCtx, timeout)
		defer cancel()
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			if _, err := e.resolveSelector(runCtx, w.ForSelector); err == nil {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return apierr.New(apierr.CodeActionTimeout, "wait.for_selector timed out")
	case "for_state":
		e.stability.StabilizePage(context.Background(), cdpCtx, stability.DefaultStabilizeTimeout)
		return nil
	default:
		return apierr.New(apierr.CodeValidation, "wait requires for_state, for_selector, or for_timeout")
	}
}

func (e *Executor) doScroll(cdpCtx context.Context, action dsl.Action) error {
	var script string
	switch {
	case action.ScrollTo == "top":
		script = "window.scrollTo(0, 0)"
	case action.ScrollTo == "bottom":
		script = "window.scrollTo(0, document.body.scrollHeight)"
	case action.ScrollDirection == "down":
		script = fmt.Sprintf("window.scrollBy(0, %d)", nonZero(action.ScrollAmount, 400))
	case action.ScrollDirection == "up":
		script = fmt.Sprintf("window.scrollBy(0, -%d)", nonZero(action.ScrollAmount, 400))
	default:
		script = "window.scrollBy(0, 400)"
	}
	if err := chromedp.Run(cdpCtx, chromedp.Evaluate(script, nil)); err != nil {
		return apierr.Wrap(apierr.CodeExecutionError, "scroll failed", err)
	}
	return nil
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func (e *Executor) doScrollToText(cdpCtx context.Context, text string) error {
	script := fmt.Sprintf(`(function(){
var walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
var node;
while (node = walker.nextNode()) {
  if (node.nodeValue && node.nodeValue.indexOf(%q) !== -1) {
    node.parentElement.scrollIntoView({block: 'center'});
    return true;
  }
}
return false;
})()`, text)
	var found bool
	if err := chromedp.Run(cdpCtx, chromedp.Evaluate(script, &found)); err != nil {
		return apierr.Wrap(apierr.CodeExecutionError, "scroll_to_text failed", err)
	}
	if !found {
		return apierr.New(apierr.CodeElementNotFound, "scroll_to_text: no match for "+text)
	}
	return nil
}

func (e *Executor) doRefreshCatalog(cdpCtx context.Context) error {
	cat, err := catalog.Collect(cdpCtx)
	if err != nil {
		return apierr.Wrap(apierr.CodeExecutionError, "catalog collection failed", err)
	}
	e.catalog.UpdateFromSignature(cat.CatalogVersion, cat)
	return nil
}

func (e *Executor) doAssert(cdpCtx context.Context, action dsl.Action) error {
	node, err := e.resolveSelector(cdpCtx, action.Selector)
	present := err == nil
	switch action.AssertState {
	case "attached", "visible":
		if !present {
			return apierr.New(apierr.CodeElementNotFound, "assert: element not attached/visible")
		}
	case "detached", "hidden":
		if present {
			return apierr.New(apierr.CodeExecutionError, fmt.Sprintf("assert: element unexpectedly present at %s", node.DOMPath))
		}
	}
	return nil
}

func (e *Executor) doEvalJS(cdpCtx context.Context, script string) error {
	var result any
	if err := chromedp.Run(cdpCtx, chromedp.Evaluate(script, &result)); err != nil {
		return apierr.Wrap(apierr.CodeExecutionError, "eval_js failed", err)
	}
	return nil
}

func (e *Executor) doClickBlankArea(cdpCtx context.Context) error {
	script := `(function(){ document.body.dispatchEvent(new MouseEvent('click', {bubbles:true, clientX: 5, clientY: 5})); return true; })()`
	var ok bool
	if err := chromedp.Run(cdpCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return apierr.Wrap(apierr.CodeExecutionError, "click_blank_area failed", err)
	}
	return nil
}

func (e *Executor) doClosePopup(cdpCtx context.Context) error {
	script := `(function(){
var closers = document.querySelectorAll('[aria-label="Close"], [aria-label="close"], .modal-close, .close, [data-dismiss="modal"]');
for (var i = 0; i < closers.length; i++) {
  var r = closers[i].getBoundingClientRect();
  if (r.width > 0 && r.height > 0) { closers[i].click(); return true; }
}
return false;
})()`
	var ok bool
	if err := chromedp.Run(cdpCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return apierr.Wrap(apierr.CodeExecutionError, "close_popup failed", err)
	}
	return nil
}

func (e *Executor) captureScreenshot(cdpCtx context.Context, runID string, index int) {
	dir := filepath.Join(e.cfg.RunsDir, runID, "shots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logger.Warn().Err(err).Msg("executor: creating shots dir failed")
		return
	}
	var buf []byte
	if err := chromedp.Run(cdpCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		e.logger.Warn().Err(err).Int("step", index).Msg("executor: screenshot capture failed")
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("step_%04d.png", index))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		e.logger.Warn().Err(err).Msg("executor: writing screenshot failed")
	}
}

// CachedCatalog exposes the executor's last-collected catalog for port B's
// GET /catalog?refresh=false path (SUPPLEMENTED FEATURE #5's
// signature-cached catalog, shared with the run loop's own cache).
func (e *Executor) CachedCatalog() (*catalog.Catalog, bool) {
	return e.catalog.Get()
}

// RefreshCatalogCache records a freshly collected catalog, keeping port B's
// cache in step with the run loop's own refreshes.
func (e *Executor) RefreshCatalogCache(cat *catalog.Catalog) {
	e.catalog.UpdateFromSignature(cat.CatalogVersion, cat)
}

func (e *Executor) observe(cdpCtx context.Context) Observation {
	var url, title string
	_ = chromedp.Run(cdpCtx, chromedp.Location(&url))
	_ = chromedp.Run(cdpCtx, chromedp.Title(&title))
	var version string
	if cat, ok := e.catalog.Get(); ok {
		version = cat.CatalogVersion
	}
	return Observation{URL: url, Title: title, CatalogVersion: version}
}
