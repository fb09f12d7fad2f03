package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

// Message is one immutable conversation turn. Ordering within a session is
// by append sequence; timestamps are informational only.
type Message struct {
	ID         string              `json:"id"`
	Role       provider.Role       `json:"role"`
	Content    string              `json:"content"`
	Timestamp  time.Time           `json:"timestamp"`
	ToolCalls  []provider.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// NewMessage creates a user/system message.
func NewMessage(role provider.Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message, capturing any tool calls
// the model requested verbatim (the model-issued ids are the correlation ids
// later tool messages must echo).
func NewAssistantMessage(content string, toolCalls []provider.ToolCall) Message {
	m := NewMessage(provider.RoleAssistant, content)
	m.ToolCalls = toolCalls
	return m
}

// NewToolMessage creates a tool-result message answering the tool call
// identified by toolCallID.
func NewToolMessage(toolCallID, content string) Message {
	m := NewMessage(provider.RoleTool, content)
	m.ToolCallID = toolCallID
	return m
}
