package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcpchat-ai/mcpchat/internal/memory"
)

const helpText = `Commands:
  /sessions              List all sessions
  /new [title]           Create a new session
  /switch <id>           Switch to a session (id prefix ok)
  /delete <id>           Delete a session (id prefix ok)
  /clear                 Clear the current session's messages
  /title <title>         Rename the current session
  /stats                 Show current session statistics
  /history [n]           Show the last n messages (default 10)
  /tools                 List available MCP tools
  /resources             List available MCP resources
  /prompts               List available MCP prompts
  /prompt <name> [k=v]   Run a server prompt through the model
  /help                  Show this help

Resource shortcuts:
  @<alias>               Read a resource by alias (see /resources)`

// handleCommand interprets a "/" command. Unknown commands produce a help
// pointer instead of an error.
func (a *Agent) handleCommand(ctx context.Context, query string) (*Result, error) {
	fields := strings.Fields(query[1:])
	if len(fields) == 0 {
		return a.result(helpText, CommandMemory), nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help":
		return a.result(helpText, CommandMemory), nil

	case "sessions":
		return a.result(a.formatSessions(), CommandMemory), nil

	case "new":
		title := strings.Join(args, " ")
		id := a.store.CreateSession(title)
		sess := a.store.CurrentSession()
		return a.result(fmt.Sprintf("Created session '%s' (%s)", sess.Title, shortID(id)), CommandMemory), nil

	case "switch":
		if len(args) == 0 {
			return a.result("Usage: /switch <session-id>", CommandMemory), nil
		}
		if resp, ok := a.switchToSession(args[0]); !ok {
			return a.result(resp, CommandMemory), nil
		}
		sess := a.store.CurrentSession()
		return a.result(fmt.Sprintf("Switched to session '%s' (%s)", sess.Title, shortID(sess.ID)), CommandMemory), nil

	case "delete":
		if len(args) == 0 {
			return a.result("Usage: /delete <session-id>", CommandMemory), nil
		}
		id, resp, ok := a.resolveSessionID(args[0])
		if !ok {
			return a.result(resp, CommandMemory), nil
		}
		a.store.Delete(id)
		return a.result(fmt.Sprintf("Deleted session %s", shortID(id)), CommandMemory), nil

	case "clear":
		a.store.ClearCurrent()
		return a.result("Session cleared.", CommandMemory), nil

	case "title":
		if len(args) == 0 {
			return a.result("Usage: /title <new title>", CommandMemory), nil
		}
		title := strings.Join(args, " ")
		a.store.RenameCurrent(title)
		return a.result(fmt.Sprintf("Session renamed to '%s'", title), CommandMemory), nil

	case "stats":
		stats, err := a.store.StatsCurrent()
		if err != nil {
			return a.result("No active session.", CommandMemory), nil
		}
		return a.result(formatStats(stats), CommandMemory), nil

	case "history":
		limit := 10
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		return a.result(a.formatHistory(limit), CommandMemory), nil

	case "tools":
		return a.result(a.formatTools(), CommandMemory), nil

	case "resources":
		return a.result(a.formatResources(), CommandMemory), nil

	case "prompts":
		return a.result(a.formatPrompts(), CommandMemory), nil

	case "prompt":
		if len(args) == 0 {
			return a.result("Usage: /prompt <name> [key=value ...]", CommandMemory), nil
		}
		return a.runPrompt(ctx, args[0], args[1:])

	default:
		return a.result(fmt.Sprintf("Unknown command '/%s'. Type /help for available commands.", cmd), CommandMemory), nil
	}
}

// runPrompt fetches a server prompt and feeds its text through the full
// turn loop, so the model can call tools while answering it.
func (a *Agent) runPrompt(ctx context.Context, name string, rawArgs []string) (*Result, error) {
	args := make(map[string]string, len(rawArgs))
	for _, kv := range rawArgs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			args[k] = v
		}
	}

	text, err := a.router.GetPrompt(ctx, name, args)
	if err != nil {
		return a.result(fmt.Sprintf("Error getting prompt '%s': %v", name, err), CommandMemory), nil
	}
	return a.runTurn(ctx, text)
}

func (a *Agent) formatSessions() string {
	infos := a.store.ListSessions()
	if len(infos) == 0 {
		return "No sessions. Type a message to start one."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Sessions (%d):\n", len(infos)))
	for _, info := range infos {
		marker := " "
		if info.IsCurrent {
			marker = "*"
		}
		sb.WriteString(fmt.Sprintf("%s %s  %-30s %3d msgs  last active %s\n",
			marker, shortID(info.ID), info.Title, info.MessageCount,
			info.LastActivity.Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *Agent) formatHistory(limit int) string {
	sess := a.store.CurrentSession()
	if sess == nil || len(sess.Messages) == 0 {
		return "No messages in the current session."
	}

	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Last %d messages:\n", len(msgs)))
	for _, m := range msgs {
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			names := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				names[i] = tc.Function.Name
			}
			content = "[tool calls: " + strings.Join(names, ", ") + "]"
		}
		if len(content) > 120 {
			content = content[:120] + "..."
		}
		sb.WriteString(fmt.Sprintf("  [%s] %-9s %s\n",
			m.Timestamp.Format("15:04:05"), m.Role, content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *Agent) formatTools() string {
	tools := a.router.ToolSchemas()
	if len(tools) == 0 {
		return "No tools available. Check your MCP server configuration."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Available tools (%d):\n", len(tools)))
	for _, t := range tools {
		desc := t.Description
		if desc == "" {
			desc = "(no description)"
		}
		if len(desc) > 80 {
			desc = desc[:80] + "..."
		}
		sb.WriteString(fmt.Sprintf("  %-30s %s\n", t.Name, desc))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatResources lists resources grouped by URI scheme, with the aliases
// that reach them.
func (a *Agent) formatResources() string {
	resources := a.router.Resources()
	if len(resources) == 0 {
		return "No resources available. Check your MCP server configuration."
	}

	byScheme := make(map[string][]string)
	var schemes []string
	for _, res := range resources {
		scheme := res.URI
		if i := strings.Index(res.URI, "://"); i > 0 {
			scheme = res.URI[:i]
		}
		if _, seen := byScheme[scheme]; !seen {
			schemes = append(schemes, scheme)
		}
		line := fmt.Sprintf("  %-40s %s", res.URI, res.Name)
		byScheme[scheme] = append(byScheme[scheme], line)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Available resources (%d):\n", len(resources)))
	for _, scheme := range schemes {
		sb.WriteString(scheme + ":\n")
		for _, line := range byScheme[scheme] {
			sb.WriteString(line + "\n")
		}
	}

	sb.WriteString("Shortcuts:\n")
	for _, alias := range resourceAliasList() {
		sb.WriteString(fmt.Sprintf("  @%-24s %s\n", alias.name, alias.uri))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *Agent) formatPrompts() string {
	prompts := a.router.Prompts()
	if len(prompts) == 0 {
		return "No prompts available. Check your MCP server configuration."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Available prompts (%d):\n", len(prompts)))
	for _, p := range prompts {
		usage := "/prompt " + p.Name
		if len(p.Arguments) > 0 {
			usage += " " + strings.Join(p.Arguments, " ")
		}
		desc := p.Description
		if desc == "" {
			desc = "(no description)"
		}
		sb.WriteString(fmt.Sprintf("  %-40s %s [%s]\n", usage, desc, p.Server))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(stats *memory.SessionStats) string {
	return fmt.Sprintf(`Session: %s (%s)
  Messages:  %d total (%d user, %d assistant, %d tool)
  Created:   %s
  Duration:  %s`,
		stats.Title, shortID(stats.SessionID),
		stats.TotalMessages, stats.UserMessages, stats.AssistantMessages, stats.ToolMessages,
		stats.CreatedAt.Format("2006-01-02 15:04:05"),
		stats.Duration)
}

// shortID abbreviates a session uuid for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
