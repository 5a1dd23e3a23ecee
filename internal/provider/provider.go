// Package provider defines the language-model boundary: one call that
// turns a message history plus tool schemas into either a final text or
// a structured tool-call request.
package provider

import (
	"context"

	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

// ToolCallRequest is the model asking for a registered capability. ID is
// an opaque continuation token echoed back with the result.
type ToolCallRequest struct {
	Name string
	Args map[string]any
	ID   string
}

// Response is either a tool call or a final text; ToolCall wins when
// both are set.
type Response struct {
	Text     string
	ToolCall *ToolCallRequest
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Provider interface {
	// Generate runs one request over the full history. Passing no tools
	// forces a plain-text response (used for titling and compaction).
	Generate(ctx context.Context, messages []store.Message, tools []tool.Schema) (Response, error)

	// Usage returns cumulative token counters for this provider.
	Usage() Usage
}
