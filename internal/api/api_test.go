package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
	"github.com/kota-kawa/web-agent01-sub000/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func echoLLM(ctx context.Context, prompt string) (string, error) {
	return `{"explanation":"noop","plan":{"actions":[]}}`, nil
}

func newTestSessionServer() *gin.Engine {
	mgr := session.New(nil, nil, dsl.NewRegistry(), echoLLM, nil, zerolog.Nop())
	return NewSessionServer(mgr, dsl.NewRegistry(), zerolog.Nop())
}

func newTestSessionServerNoLLM() *gin.Engine {
	mgr := session.New(nil, nil, dsl.NewRegistry(), nil, nil, zerolog.Nop())
	return NewSessionServer(mgr, dsl.NewRegistry(), zerolog.Nop())
}

func TestHealthzSessionServer(t *testing.T) {
	r := newTestSessionServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateSessionRejectsMissingCommand(t *testing.T) {
	r := newTestSessionServer()
	body, _ := json.Marshal(map[string]any{"model": "gpt-4o-mini"})
	req := httptest.NewRequest(http.MethodPost, "/browser-use/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing command, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateSessionRejectsWithoutLLMCollaborator(t *testing.T) {
	r := newTestSessionServerNoLLM()
	body, _ := json.Marshal(map[string]any{"command": "click the buy button"})
	req := httptest.NewRequest(http.MethodPost, "/browser-use/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no CallLLM collaborator is configured, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetSessionUnknown(t *testing.T) {
	r := newTestSessionServer()
	req := httptest.NewRequest(http.MethodGet, "/browser-use/session/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelSessionUnknown(t *testing.T) {
	r := newTestSessionServer()
	req := httptest.NewRequest(http.MethodPost, "/browser-use/session/missing/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAddInstructionUnknownSession(t *testing.T) {
	r := newTestSessionServer()
	body, _ := json.Marshal(map[string]any{"instruction": "also check the cart"})
	req := httptest.NewRequest(http.MethodPost, "/session/missing/instruction", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAddInstructionRejectsMissingText(t *testing.T) {
	r := newTestSessionServer()
	body, _ := json.Marshal(map[string]any{})
	req := httptest.NewRequest(http.MethodPost, "/session/missing/instruction", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing instruction, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStatusForCode(t *testing.T) {
	cases := map[apierr.Code]int{
		apierr.CodeValidation:               http.StatusBadRequest,
		apierr.CodeElementNotFound:          http.StatusNotFound,
		apierr.CodeSharedBrowserUnavailable: http.StatusServiceUnavailable,
		apierr.CodeNavigationTimeout:        http.StatusGatewayTimeout,
		apierr.CodeExecutionError:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusForCode(code); got != want {
			t.Errorf("statusForCode(%s) = %d, want %d", code, got, want)
		}
	}
}
