// Package extract defines the external collaborator interfaces for
// extraction and LLM call-outs. The executor does not call them: it
// answers the `extract` action with UNSUPPORTED_ACTION; the session
// manager uses CallLLM and ConversationHistory (spec §4.2/§9 "Non-goals: OCR,
// readability extraction, and LLM invocation are collaborator
// responsibilities, not this broker's"). This package holds interface
// definitions only — no OCR/readability/LLM algorithm lives here.
package extract

import "context"

// VisualExtractor turns a screenshot into natural-language text, used for
// extract_kind="ocr" (spec §3). Implementations live outside this module
// (an external OCR service call).
type VisualExtractor interface {
	ExtractText(ctx context.Context, screenshotPNG []byte) (string, error)
}

// CallLLM is the signature an external LLM invocation must satisfy. The
// session manager (C8) calls this to turn a StartSession command into a
// plan each agent-loop step (spec §1 "CallLLM(prompt) → {explanation,
// plan}"); extract_kind="article" readability summarization can reuse the
// same collaborator. The broker owns none of the model selection or prompt
// engineering inside it — only the call-out boundary.
type CallLLM func(ctx context.Context, prompt string) (string, error)

// ConversationHistory is the append-only transcript a caller may attach to
// a session to keep multi-step natural-language instructions in context
// (the session manager loads it when a run starts and appends each turn). The broker
// only appends/loads; it does not interpret contents.
type ConversationHistory interface {
	Load(ctx context.Context, sessionID string) ([]Entry, error)
	Append(ctx context.Context, sessionID string, entry Entry) error
}

// Entry is one turn in a conversation history.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
