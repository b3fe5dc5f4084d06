// Package llmclient implements the CallLLM and ConversationHistory
// collaborators the Session Manager (C8) invokes (spec §4.8/§1). Grounded
// on cmux-devbox-2/internal/api/client.go's plain net/http.Client +
// doRequest(method, path, body) JSON-POST pattern, generalized from a
// sandbox-control API into a single prompt-completion call-out.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kota-kawa/web-agent01-sub000/internal/extract"
)

// HTTPClient posts each agent-loop prompt to an external completion
// endpoint and returns the completion text, satisfying extract.CallLLM.
type HTTPClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient builds a CallLLM collaborator backed by endpoint, an
// OpenAI-compatible chat-completions URL, using model as the request's
// default model name. apiKey may be empty for endpoints that don't
// require auth (e.g. a local model server).
func NewHTTPClient(endpoint, model, apiKey string) *HTTPClient {
	return &HTTPClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Call implements extract.CallLLM: a single prompt in, the model's raw
// text response out. The session loop is responsible for parsing that
// text as plan JSON.
func (c *HTTPClient) Call(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llmclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llmclient: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llmclient: endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		// Some local model servers return the completion as a bare string
		// body instead of the OpenAI chat-completions envelope.
		return string(body), nil
	}
	return parsed.Choices[0].Message.Content, nil
}

// InMemoryHistory is a process-local ConversationHistory keyed by session
// id. It exists so a deployment without an external transcript store
// still gets multi-step conversational context within one broker process
// lifetime.
type InMemoryHistory struct {
	mu      sync.Mutex
	entries map[string][]extract.Entry
}

// NewInMemoryHistory builds an empty InMemoryHistory.
func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{entries: make(map[string][]extract.Entry)}
}

func (h *InMemoryHistory) Load(ctx context.Context, sessionID string) ([]extract.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]extract.Entry{}, h.entries[sessionID]...), nil
}

func (h *InMemoryHistory) Append(ctx context.Context, sessionID string, entry extract.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[sessionID] = append(h.entries[sessionID], entry)
	return nil
}
