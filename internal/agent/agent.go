// Package agent orchestrates chat turns: it classifies user input, replays
// conversation memory into the completion API, dispatches requested tool
// calls through the MCP router, and records every message durably.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mcpchat-ai/mcpchat/internal/config"
	"github.com/mcpchat-ai/mcpchat/internal/mcp"
	"github.com/mcpchat-ai/mcpchat/internal/memory"
	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

// CommandType classifies what a processed query turned out to be.
type CommandType string

const (
	CommandChat     CommandType = "chat"
	CommandMemory   CommandType = "memory_command"
	CommandResource CommandType = "resource_command"
	CommandEmpty    CommandType = "empty"
)

// Result is the structured outcome of one processed query.
type Result struct {
	Response     string           `json:"response"`
	SessionID    string           `json:"session_id"`
	SessionTitle string           `json:"session_title"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	MessageCount int              `json:"message_count"`
	CommandType  CommandType      `json:"command_type"`
}

// ToolCallRecord summarizes one tool dispatch within a turn.
type ToolCallRecord struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	IsError   bool   `json:"is_error"`
}

// Agent ties the provider, the capability router, and conversation memory
// together. It holds no global state; everything flows through the struct.
type Agent struct {
	provider provider.Provider
	router   *mcp.Router
	store    *memory.Store
	cfg      config.ChatConfig
	logger   *slog.Logger
}

func New(p provider.Provider, router *mcp.Router, store *memory.Store, cfg config.ChatConfig, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		provider: p,
		router:   router,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// ProcessQuery handles one user input end to end. A non-empty sessionID
// switches to that session first (prefix matching applies); with no current
// session, one is created on demand. "/" inputs are interpreted as commands,
// "@" inputs as resource reads, everything else goes through the model.
func (a *Agent) ProcessQuery(ctx context.Context, query, sessionID string) (*Result, error) {
	query = strings.TrimSpace(query)

	if sessionID != "" {
		if resp, ok := a.switchToSession(sessionID); !ok {
			return a.result(resp, CommandMemory), nil
		}
	}
	if a.store.CurrentSession() == nil {
		a.store.CreateSession("New Chat")
	}

	switch {
	case query == "":
		return a.result("", CommandEmpty), nil
	case strings.HasPrefix(query, "/"):
		return a.handleCommand(ctx, query)
	case strings.HasPrefix(query, "@"):
		return a.handleResource(ctx, query)
	default:
		return a.runTurn(ctx, query)
	}
}

// result assembles a Result for the current session state.
func (a *Agent) result(response string, kind CommandType) *Result {
	r := &Result{
		Response:    response,
		Timestamp:   time.Now(),
		CommandType: kind,
	}
	if sess := a.store.CurrentSession(); sess != nil {
		r.SessionID = sess.ID
		r.SessionTitle = sess.Title
		r.MessageCount = len(sess.Messages)
	}
	return r
}

// switchToSession resolves a session id or unique prefix and switches to it.
// On failure it returns a user-facing explanation and false, leaving the
// current session untouched.
func (a *Agent) switchToSession(idOrPrefix string) (string, bool) {
	id, resp, ok := a.resolveSessionID(idOrPrefix)
	if !ok {
		return resp, false
	}
	a.store.Switch(id)
	return "", true
}

// resolveSessionID matches an exact session id, or a unique prefix of one.
func (a *Agent) resolveSessionID(idOrPrefix string) (string, string, bool) {
	infos := a.store.ListSessions()

	var matches []string
	for _, info := range infos {
		if info.ID == idOrPrefix {
			return info.ID, "", true
		}
		if strings.HasPrefix(info.ID, idOrPrefix) {
			matches = append(matches, info.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", "Session '" + idOrPrefix + "' not found. Use /sessions to list sessions.", false
	case 1:
		return matches[0], "", true
	default:
		var sb strings.Builder
		sb.WriteString("Session prefix '" + idOrPrefix + "' is ambiguous. Matches:\n")
		for _, id := range matches {
			sb.WriteString("  " + id + "\n")
		}
		return "", strings.TrimRight(sb.String(), "\n"), false
	}
}
