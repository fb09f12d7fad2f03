// Package memory implements the durable multi-session conversation store:
// sessions of ordered messages, a current-session pointer, LRU eviction past
// a session cap, and full-snapshot persistence on every mutation.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Session is a named, independently addressable conversation.
type Session struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Messages     []Message      `json:"messages"`
	Context      map[string]any `json:"context"`
}

func newSession(title string) *Session {
	now := time.Now()
	if title == "" {
		title = "Chat " + now.Format("2006-01-02 15:04")
	}
	return &Session{
		ID:           uuid.New().String(),
		Title:        title,
		CreatedAt:    now,
		LastActivity: now,
		Messages:     []Message{},
		Context:      map[string]any{},
	}
}

// SessionInfo is a lightweight summary of a session (for listing).
type SessionInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	IsCurrent    bool      `json:"is_current"`
}

// SessionStats summarizes the current session's composition.
type SessionStats struct {
	SessionID         string    `json:"session_id"`
	Title             string    `json:"title"`
	TotalMessages     int       `json:"total_messages"`
	UserMessages      int       `json:"user_messages"`
	AssistantMessages int       `json:"assistant_messages"`
	ToolMessages      int       `json:"tool_calls"`
	CreatedAt         time.Time `json:"created_at"`
	Duration          string    `json:"duration"`
}
