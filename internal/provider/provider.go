// Package provider defines the unified interface and shared types for all
// completion API providers. Each adapter (openai.go, anthropic.go) converts
// the unified request into the vendor's API format and normalizes the reply
// into a Completion.
package provider

import "context"

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FunctionCall carries the name and raw JSON arguments of a requested call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a tool invocation requested by the model. The ID is the
// correlation id that a later tool-role message must echo back.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// Message is one conversation turn in the shape the completion API expects.
// Tool-role messages carry ToolCallID and Content only; assistant messages
// may carry ToolCalls.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ── Tool schema ──────────────────────────────────────────────────────────────

// ToolSchema describes a tool offered to the model. Parameters holds the
// JSON Schema properties object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ── Request / response ───────────────────────────────────────────────────────

// CompletionRequest is the unified request format sent to a provider.
// Message order is preserved exactly as supplied.
type CompletionRequest struct {
	Model     string
	Messages  []Message
	Tools     []ToolSchema
	MaxTokens int
}

// Completion is a single non-streaming model reply: plain text, requested
// tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all completion API providers.
type Provider interface {
	// Complete sends the conversation and returns the model's reply.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the provider identifier, e.g. "openai", "anthropic".
	Name() string

	// DefaultModel returns the model used when the request does not set one.
	DefaultModel() string
}
