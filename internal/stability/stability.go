// Package stability implements the Page Stability Helpers (C5): blocking
// waits for network idle, DOM-mutation idle, and loading-indicator
// disappearance (spec §4.5). Ported from original_source/vnc/
// page_stability.py's wait_dom_idle/wait_for_loading_indicators/
// stabilize_page, using chromedp.Evaluate/chromedp.Run for the in-page
// waits the way cloudrouter/cmd/worker/browser.go uses them for its own
// page-state checks.
package stability

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// DefaultStabilizeTimeout matches original_source's DEFAULT_STABILIZE_TIMEOUT.
const DefaultStabilizeTimeout = 2000 * time.Millisecond

// domIdleThreshold is the "no mutations for >=300ms" window spec §4.5
// requires.
const domIdleThreshold = 300 * time.Millisecond

// loadingSelectors mirrors original_source's _LOADING_SELECTORS list.
var loadingSelectors = []string{
	".loading", ".spinner", ".loader",
	"[data-testid*='loading']",
	".fa-spinner", ".fa-circle-notch", ".fa-refresh",
	"[role='status'][aria-live]",
	".MuiCircularProgress-root", ".ant-spin",
}

// readySelectors is the first-of set WaitPageReady waits on.
var readySelectors = []string{"body", "main", "nav", "header", "footer"}

// Helpers bundles the stability waits against one chromedp context.
type Helpers struct {
	logger zerolog.Logger
}

// New builds a Helpers instance.
func New(logger zerolog.Logger) *Helpers {
	return &Helpers{logger: logger}
}

// StabilizePage awaits networkidle, then DOM-mutation idle, then
// disappearance of loading indicators, absorbing timeouts at each stage
// (spec §4.5: "never raises; absorbs timeouts").
func (h *Helpers) StabilizePage(ctx context.Context, cdpCtx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultStabilizeTimeout
	}
	deadline := time.Now().Add(timeout)

	h.waitNetworkIdle(cdpCtx, remaining(deadline))
	h.waitDOMIdle(cdpCtx, remaining(deadline))
	h.waitLoadingIndicatorsGone(cdpCtx, remaining(deadline))
}

func remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

// networkIdleScript polls the resource-timing buffer for a count that
// stops growing across two 200ms samples, a practical proxy for
// networkidle without wiring chromedp's raw Network.* event stream.
const networkIdleScript = `
new Promise(function(resolve) {
  function count() { return performance.getEntriesByType('resource').length; }
  var last = count();
  var stableTicks = 0;
  var interval = setInterval(function() {
    var now = count();
    if (now === last) {
      stableTicks++;
      if (stableTicks >= 2) { clearInterval(interval); resolve(true); }
    } else {
      stableTicks = 0;
      last = now;
    }
  }, 200);
  setTimeout(function() { clearInterval(interval); resolve(true); }, 2000);
})
`

func (h *Helpers) waitNetworkIdle(cdpCtx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	runCtx, cancel := context.WithTimeout(cdpCtx, timeout)
	defer cancel()
	var result bool
	_ = chromedp.Run(runCtx, chromedp.Evaluate(networkIdleScript, &result, func(p *chromedp.EvaluateParams) *chromedp.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

const domIdleScript = `
new Promise(function(resolve) {
  var timer = null;
  var resolved = false;
  function settle() {
    if (resolved) return;
    resolved = true;
    observer.disconnect();
    resolve(true);
  }
  var observer = new MutationObserver(function() {
    if (timer) clearTimeout(timer);
    timer = setTimeout(settle, ` + "300" + `);
  });
  observer.observe(document.documentElement, {childList: true, subtree: true, attributes: true});
  timer = setTimeout(settle, ` + "300" + `);
  setTimeout(settle, ` + "2000" + `);
})
`

func (h *Helpers) waitDOMIdle(cdpCtx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	runCtx, cancel := context.WithTimeout(cdpCtx, timeout)
	defer cancel()
	var result bool
	_ = chromedp.Run(runCtx, chromedp.Evaluate(domIdleScript, &result, func(p *chromedp.EvaluateParams) *chromedp.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (h *Helpers) waitLoadingIndicatorsGone(cdpCtx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	script := buildLoadingIndicatorScript()
	runCtx, cancel := context.WithTimeout(cdpCtx, timeout)
	defer cancel()
	var result bool
	_ = chromedp.Run(runCtx, chromedp.Evaluate(script, &result, func(p *chromedp.EvaluateParams) *chromedp.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func buildLoadingIndicatorScript() string {
	selectorList := "'" + strings.Join(loadingSelectors, "', '") + "'"
	return `
new Promise(function(resolve) {
  var selectors = [` + selectorList + `];
  function anyVisible() {
    return selectors.some(function(sel) {
      var els = document.querySelectorAll(sel);
      for (var i = 0; i < els.length; i++) {
        var r = els[i].getBoundingClientRect();
        if (r.width > 0 && r.height > 0) return true;
      }
      return false;
    });
  }
  if (!anyVisible()) { resolve(true); return; }
  var interval = setInterval(function() {
    if (!anyVisible()) { clearInterval(interval); resolve(true); }
  }, 100);
  setTimeout(function() { clearInterval(interval); resolve(true); }, 1500);
})
`
}

// WaitPageReady checks once, in order, whether any of {body, main, nav,
// header, footer} exists in the document, stopping at the first that does,
// then calls StabilizePage (spec §4.5). It does not poll for the selectors
// and does not check their visibility.
func (h *Helpers) WaitPageReady(ctx context.Context, cdpCtx context.Context, timeout time.Duration) {
	readyCtx, cancel := context.WithTimeout(cdpCtx, timeout)
	defer cancel()
	for _, sel := range readySelectors {
		var exists bool
		if err := chromedp.Run(readyCtx, chromedp.Evaluate(
			"!!document.querySelector('"+sel+"')", &exists)); err == nil && exists {
			break
		}
	}
	h.StabilizePage(ctx, cdpCtx, DefaultStabilizeTimeout)
}

// navigatingErrorSubstrings matches the transient "page navigating" class
// of errors original_source's safe_get_page_content retries on.
var navigatingErrorSubstrings = []string{"navigating", "Cannot find context", "Execution context was destroyed"}

// SafeGetPageContent returns the page's outer HTML with up to 3 retries
// on transient navigation errors; returns empty string if all retries
// fail (spec §4.5).
func SafeGetPageContent(cdpCtx context.Context) string {
	for attempt := 0; attempt < 3; attempt++ {
		var html string
		err := chromedp.Run(cdpCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
		if err == nil {
			return html
		}
		if !isNavigatingError(err) {
			return ""
		}
		time.Sleep(500 * time.Millisecond)
	}
	return ""
}

func isNavigatingError(err error) bool {
	msg := err.Error()
	for _, s := range navigatingErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
