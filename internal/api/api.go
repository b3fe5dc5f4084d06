// Package api implements the two HTTP surfaces spec §6 describes: the
// session/shared-browser lifecycle port (A) and the page-introspection +
// /execute-dsl port (B). The teacher (cloudrouter/cmd/worker/main.go)
// routes with a plain http.NewServeMux/mux.HandleFunc and has no gin
// dependency at all; its path layout and JSON command/response shape are
// kept, but the router/group/binding idiom is grounded on a genuine gin
// user in the pack instead, Easonliuliang-purify/api/router.go's
// NewRouter (gin.New(), route groups, ShouldBindJSON, structured JSON
// error bodies).
package api

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/chromedp/chromedp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
	"github.com/kota-kawa/web-agent01-sub000/internal/browser"
	"github.com/kota-kawa/web-agent01-sub000/internal/catalog"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
	"github.com/kota-kawa/web-agent01-sub000/internal/executor"
	"github.com/kota-kawa/web-agent01-sub000/internal/extract"
	"github.com/kota-kawa/web-agent01-sub000/internal/session"
)

// errorEnvelope is the {error:{code,message,details?}} shape every
// non-2xx response uses (spec §6/§7).
type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func writeError(c *gin.Context, status int, err error) {
	apiErr, ok := apierr.As(err)
	env := errorEnvelope{}
	if ok {
		env.Error.Code = string(apiErr.Code)
		env.Error.Message = apiErr.Message
		env.Error.Details = apiErr.Details
	} else {
		env.Error.Code = string(apierr.CodeExecutionError)
		env.Error.Message = err.Error()
	}
	c.JSON(status, env)
}

func statusForCode(code apierr.Code) int {
	switch code {
	case apierr.CodeValidation, apierr.CodeInvalidIndex, apierr.CodeUnsupportedAction:
		return http.StatusBadRequest
	case apierr.CodeElementNotFound, apierr.CodeTargetNotFound:
		return http.StatusNotFound
	case apierr.CodeSharedBrowserUnavailable:
		return http.StatusServiceUnavailable
	case apierr.CodeNavigationTimeout, apierr.CodeActionTimeout, apierr.CodePageLoadTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// SessionServer implements port A: session lifecycle + shared-browser
// management (spec §6).
type SessionServer struct {
	manager  *session.Manager
	registry *dsl.Registry
	logger   zerolog.Logger
}

// NewSessionServer builds port A's router.
func NewSessionServer(manager *session.Manager, registry *dsl.Registry, logger zerolog.Logger) *gin.Engine {
	s := &SessionServer{manager: manager, registry: registry, logger: logger}
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/browser-use/session", s.createSession)
	r.GET("/browser-use/session/:id", s.getSession)
	r.POST("/browser-use/session/:id/cancel", s.cancelSession)
	r.POST("/session/:id/instruction", s.addInstruction)
	r.POST("/shared-browser/ensure", s.ensureSharedBrowser)
	r.GET("/healthz", healthz)
	return r
}

type createSessionRequest struct {
	Command            string          `json:"command" binding:"required"`
	Model              string          `json:"model"`
	MaxSteps           int             `json:"max_steps"`
	ConversationContext []extract.Entry `json:"conversation_context"`
}

func (s *SessionServer) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, apierr.New(apierr.CodeValidation, err.Error()))
		return
	}

	sessionID, err := s.manager.StartSession(req.Command, req.Model, req.MaxSteps, req.ConversationContext)
	if err != nil {
		apiErr, _ := apierr.As(err)
		code := apierr.CodeValidation
		if apiErr != nil {
			code = apiErr.Code
		}
		status := statusForCode(code)
		if code == apierr.CodeExecutionError {
			status = http.StatusServiceUnavailable
		}
		writeError(c, status, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
}

func (s *SessionServer) getSession(c *gin.Context) {
	status, err := s.manager.GetStatus(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *SessionServer) cancelSession(c *gin.Context) {
	if err := s.manager.CancelSession(c.Param("id")); err != nil {
		writeError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *SessionServer) addInstruction(c *gin.Context) {
	var req struct {
		Instruction string `json:"instruction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, apierr.New(apierr.CodeValidation, err.Error()))
		return
	}

	status, err := s.manager.AddInstruction(c.Param("id"), req.Instruction)
	if err != nil {
		switch status {
		case "not_found":
			writeError(c, http.StatusNotFound, err)
		case "not_running":
			writeError(c, http.StatusConflict, err)
		default:
			writeError(c, http.StatusBadRequest, err)
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

func (s *SessionServer) ensureSharedBrowser(c *gin.Context) {
	var req struct {
		Candidates []string `json:"candidates"`
	}
	_ = c.ShouldBindJSON(&req)

	result, err := s.manager.EnsureSharedBrowser(c.Request.Context(), req.Candidates)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AutomationServer implements port B: page introspection, /execute-dsl,
// and /healthz (spec §6).
type AutomationServer struct {
	exec      *executor.Executor
	connector *browser.Connector
	registry  *dsl.Registry
	logger    zerolog.Logger
}

// NewAutomationServer builds port B's router.
func NewAutomationServer(exec *executor.Executor, connector *browser.Connector, registry *dsl.Registry, logger zerolog.Logger) *gin.Engine {
	s := &AutomationServer{exec: exec, connector: connector, registry: registry, logger: logger}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/source", s.getSource)
	r.GET("/url", s.getURL)
	r.GET("/screenshot", s.getScreenshot)
	r.GET("/elements", s.getElements)
	r.GET("/catalog", s.getCatalog)
	r.POST("/execute-dsl", s.executeDSL)
	r.GET("/healthz", healthz)
	return r
}

func (s *AutomationServer) executeDSL(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		writeError(c, http.StatusBadRequest, apierr.New(apierr.CodeValidation, err.Error()))
		return
	}

	runReq, err := dsl.ParseRunRequest(s.registry, raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, apierr.Wrap(apierr.CodeValidation, "invalid plan", err))
		return
	}

	result, err := s.exec.Run(c.Request.Context(), runReq)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if result.Error != nil {
		status = statusForCode(result.Error.Code)
	}
	c.JSON(status, result)
}

// cdpContext resolves the shared browser's chromedp context for a page
// introspection request, writing the standard SHARED_BROWSER_UNAVAILABLE
// envelope on failure.
func (s *AutomationServer) cdpContext(c *gin.Context) (context.Context, bool) {
	cdpCtx, err := s.connector.Context(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, apierr.Wrap(apierr.CodeSharedBrowserUnavailable, "connector unavailable", err))
		return nil, false
	}
	return cdpCtx, true
}

// getSource implements spec §6's GET /source: the current page's HTML.
func (s *AutomationServer) getSource(c *gin.Context) {
	cdpCtx, ok := s.cdpContext(c)
	if !ok {
		return
	}
	var html string
	if err := chromedp.Run(cdpCtx, chromedp.OuterHTML("html", &html)); err != nil {
		writeError(c, http.StatusInternalServerError, apierr.Wrap(apierr.CodeExecutionError, "source fetch failed", err))
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(html))
}

// getURL implements spec §6's GET /url.
func (s *AutomationServer) getURL(c *gin.Context) {
	cdpCtx, ok := s.cdpContext(c)
	if !ok {
		return
	}
	var pageURL string
	if err := chromedp.Run(cdpCtx, chromedp.Location(&pageURL)); err != nil {
		writeError(c, http.StatusInternalServerError, apierr.Wrap(apierr.CodeExecutionError, "url fetch failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": pageURL})
}

// getScreenshot implements spec §6's GET /screenshot: a base64 PNG as
// text/plain.
func (s *AutomationServer) getScreenshot(c *gin.Context) {
	cdpCtx, ok := s.cdpContext(c)
	if !ok {
		return
	}
	var buf []byte
	if err := chromedp.Run(cdpCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		writeError(c, http.StatusInternalServerError, apierr.Wrap(apierr.CodeExecutionError, "screenshot capture failed", err))
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(base64.StdEncoding.EncodeToString(buf)))
}

// getElements implements spec §6's GET /elements: a freshly collected
// catalog's entries.
func (s *AutomationServer) getElements(c *gin.Context) {
	cdpCtx, ok := s.cdpContext(c)
	if !ok {
		return
	}
	cat, err := catalog.Collect(cdpCtx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, apierr.Wrap(apierr.CodeExecutionError, "catalog collection failed", err))
		return
	}
	s.exec.RefreshCatalogCache(cat)
	c.JSON(http.StatusOK, cat.Entries)
}

// getCatalog implements spec §6's GET /catalog?refresh=bool, reusing the
// run loop's signature-cached catalog (SUPPLEMENTED FEATURE #5) unless the
// caller asks for a forced recollection; ?view=abbreviated (SUPPLEMENTED
// FEATURE #4) applies independently of refresh.
func (s *AutomationServer) getCatalog(c *gin.Context) {
	forceRefresh := c.Query("refresh") == "true" || c.Query("refresh") == "1"

	cat, cached := s.exec.CachedCatalog()
	if forceRefresh || !cached {
		cdpCtx, ok := s.cdpContext(c)
		if !ok {
			return
		}
		collected, err := catalog.Collect(cdpCtx)
		if err != nil {
			writeError(c, http.StatusInternalServerError, apierr.Wrap(apierr.CodeExecutionError, "catalog collection failed", err))
			return
		}
		s.exec.RefreshCatalogCache(collected)
		cat = collected
	}

	if c.Query("view") == "abbreviated" {
		c.JSON(http.StatusOK, gin.H{"catalog_version": cat.CatalogVersion, "entries": catalog.Abbreviated(cat)})
		return
	}
	c.JSON(http.StatusOK, cat)
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
