package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// UnavailableError is the terminal SharedBrowserUnavailable condition from
// spec §4.1, carrying every attempted endpoint and a localized hint.
type UnavailableError struct {
	Reason     string
	Candidates []string
}

func (e *UnavailableError) Error() string {
	return FormatUnavailableHint(e.Reason, e.Candidates)
}

// probeTimeout and probeBudget mirror spec §4.1: ~2s per probe, 6s total
// budget, polled every 250ms.
const (
	probeTimeout  = 2 * time.Second
	probeBudget   = 6 * time.Second
	probeInterval = 250 * time.Millisecond
)

type versionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Probe result: a reachable candidate plus its (possibly rewritten)
// websocket debugger URL.
type Probe struct {
	Candidate    string
	WebSocketURL string
}

// ProbeCandidates polls each candidate's /json/version until one answers
// HTTP 200 within the shared budget, per spec §4.1.
func ProbeCandidates(ctx context.Context, candidates []string, logger zerolog.Logger) (*Probe, error) {
	normalized := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if n := NormalizeCandidate(c); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 {
		return nil, &UnavailableError{Reason: "CDP エンドポイントが設定されていません", Candidates: candidates}
	}

	deadline := time.Now().Add(probeBudget)
	client := &http.Client{Timeout: probeTimeout}

	for time.Now().Before(deadline) {
		for _, candidate := range normalized {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			wsURL, err := probeOne(ctx, client, candidate)
			if err != nil {
				logger.Debug().Str("candidate", candidate).Err(err).Msg("probe failed")
				continue
			}
			rewritten := NormalizeCDPWebsocket(candidate, wsURL)
			return &Probe{Candidate: candidate, WebSocketURL: rewritten}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(probeInterval):
		}
	}

	return nil, &UnavailableError{
		Reason:     "すべての CDP 候補への接続がタイムアウトしました",
		Candidates: normalized,
	}
}

func probeOne(ctx context.Context, client *http.Client, candidate string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(candidate, "/")+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		// Fall back to the candidate itself, per spec §4.1.
		return candidate, nil
	}
	return info.WebSocketDebuggerURL, nil
}

// WarmupResult is the shape EnsureSharedBrowser returns to external
// viewers (spec §4.1/§6 POST /shared-browser/ensure).
type WarmupResult struct {
	Ready           bool     `json:"ready"`
	CDPReady        bool     `json:"cdp_ready"`
	ActiveEndpoint  string   `json:"active_endpoint,omitempty"`
	PublicEndpoint  string   `json:"public_endpoint,omitempty"`
	PublicWebsocket string   `json:"public_websocket,omitempty"`
	Candidates      []string `json:"candidates"`
}

// Connector owns the lazy CDP connection shared across sessions, mirroring
// cloudrouter/cmd/worker/browser.go's browserManager but generalized to
// the spec's candidate-list/probe/rewrite contract instead of a single
// hardcoded port.
type Connector struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	candidates func() []string

	allocCtx  context.Context
	allocCanc context.CancelFunc
	ctx       context.Context
	ctxCanc   context.CancelFunc

	activeEndpoint string
	lastURL        string
	defaultURL     string
	visitedURL     string
}

// NewConnector builds a Connector. candidates is called lazily each time a
// connection attempt is made, so config changes (or caller-supplied
// overrides on /shared-browser/ensure) are picked up without restart.
func NewConnector(candidates func() []string, defaultURL string, logger zerolog.Logger) *Connector {
	return &Connector{candidates: candidates, defaultURL: defaultURL, logger: logger}
}

// EnsureSharedBrowser probes the given candidates (or the connector's
// configured list if empty) and returns a warmup result, connecting lazily
// if not already connected (spec §4.1).
func (c *Connector) EnsureSharedBrowser(ctx context.Context, overrideCandidates []string) (*WarmupResult, error) {
	candidates := overrideCandidates
	if len(candidates) == 0 {
		candidates = c.candidates()
	}

	cdpCtx, err := c.ensureConnected(ctx, candidates)
	if err != nil {
		return &WarmupResult{Ready: false, CDPReady: false, Candidates: candidates}, err
	}
	_ = cdpCtx

	c.mu.Lock()
	defer c.mu.Unlock()
	return &WarmupResult{
		Ready:           true,
		CDPReady:        true,
		ActiveEndpoint:  c.activeEndpoint,
		PublicEndpoint:  c.activeEndpoint,
		PublicWebsocket: c.lastURL,
		Candidates:      candidates,
	}, nil
}

// ensureConnected lazily connects or reconnects, testing any existing
// context with a no-op Run before reusing it (mirrors browserManager's
// ensureConnected staleness check).
func (c *Connector) ensureConnected(ctx context.Context, candidates []string) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx != nil {
		if err := chromedp.Run(c.ctx); err == nil {
			return c.ctx, nil
		}
		c.logger.Warn().Msg("[connector] existing connection stale, reconnecting")
		c.closeLocked()
	}

	probe, err := ProbeCandidates(ctx, candidates, c.logger)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCanc := chromedp.NewRemoteAllocator(context.Background(), probe.WebSocketURL)
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(cdpCtx); err != nil {
		allocCanc()
		cancel()
		return nil, fmt.Errorf("browser: failed to attach to page: %w", err)
	}

	c.allocCtx, c.allocCanc = allocCtx, allocCanc
	c.ctx, c.ctxCanc = cdpCtx, cancel
	c.activeEndpoint = probe.Candidate
	c.lastURL = probe.WebSocketURL

	c.logger.Info().Str("endpoint", probe.Candidate).Msg("[connector] connected to shared browser")
	return cdpCtx, nil
}

// Context returns the current CDP context, connecting lazily if needed.
func (c *Connector) Context(ctx context.Context) (context.Context, error) {
	return c.ensureConnected(ctx, c.candidates())
}

// IsHealthy calls a no-side-effect property on the page (its title) and
// returns false on any error (spec §4.1).
func (c *Connector) IsHealthy() bool {
	c.mu.Lock()
	cdpCtx := c.ctx
	c.mu.Unlock()
	if cdpCtx == nil {
		return false
	}
	var title string
	err := chromedp.Run(cdpCtx, chromedp.Title(&title))
	return err == nil
}

// Recreate closes the current connection and re-establishes it, then
// re-navigates to the previously visited non-default URL (skipping
// about:* and the configured default), up to 3 attempts, per spec §4.1.
func (c *Connector) Recreate(ctx context.Context) error {
	c.mu.Lock()
	lastURL := c.lastVisitedPage()
	c.closeLocked()
	c.mu.Unlock()

	if _, err := c.ensureConnected(ctx, c.candidates()); err != nil {
		return err
	}

	if lastURL == "" || strings.HasPrefix(lastURL, "about:") || lastURL == c.defaultURL {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		c.mu.Lock()
		cdpCtx := c.ctx
		c.mu.Unlock()
		if cdpCtx == nil {
			break
		}
		if err := chromedp.Run(cdpCtx, chromedp.Navigate(lastURL)); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		c.logger.Warn().Err(lastErr).Str("url", lastURL).Msg("[connector] failed to restore URL after reconnect, continuing")
	}
	return nil
}

// lastVisitedPage is a placeholder hook: callers (the executor) track the
// last navigated URL per session and pass it through SetLastVisited; this
// keeps the connector itself free of session-scoped state beyond the one
// shared page.
func (c *Connector) lastVisitedPage() string {
	return c.visitedURL
}

// SetLastVisited records the most recently navigated-to URL so Recreate
// can restore it after a reconnect.
func (c *Connector) SetLastVisited(url string) {
	c.mu.Lock()
	c.visitedURL = url
	c.mu.Unlock()
}

func (c *Connector) closeLocked() {
	if c.ctxCanc != nil {
		c.ctxCanc()
	}
	if c.allocCanc != nil {
		c.allocCanc()
	}
	c.ctx, c.ctxCanc = nil, nil
	c.allocCtx, c.allocCanc = nil, nil
}

// Close releases the connector's resources.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}
