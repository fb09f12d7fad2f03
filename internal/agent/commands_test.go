package agent

import (
	"context"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpchat-ai/mcpchat/internal/memory"
	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

func memoryUserMessage(content string) memory.Message {
	return memory.NewMessage(provider.RoleUser, content)
}

// capBackend serves prompts and resources for command tests.
type capBackend struct {
	echoBackend
	prompts   []*sdk.Prompt
	resources []*sdk.Resource
	readURIs  []string
}

func (b *capBackend) Prompts() []*sdk.Prompt     { return b.prompts }
func (b *capBackend) Resources() []*sdk.Resource { return b.resources }

func (b *capBackend) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	return "Please summarize " + args["topic"], nil
}

func (b *capBackend) ReadResource(ctx context.Context, uri string) ([]string, error) {
	b.readURIs = append(b.readURIs, uri)
	return []string{"line one", "line two"}, nil
}

func TestEmptyQuery(t *testing.T) {
	a, _ := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	res, err := a.ProcessQuery(context.Background(), "   ", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.CommandType != CommandEmpty || res.Response != "" {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestNewAndSessionsCommands(t *testing.T) {
	a, store := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	res, err := a.ProcessQuery(context.Background(), "/new Project planning", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "Project planning") {
		t.Fatalf("expected creation confirmation, got %q", res.Response)
	}
	if store.CurrentSession().Title != "Project planning" {
		t.Fatalf("session not created: %+v", store.CurrentSession())
	}

	res, _ = a.ProcessQuery(context.Background(), "/sessions", "")
	if !strings.Contains(res.Response, "Project planning") {
		t.Fatalf("expected session in listing, got %q", res.Response)
	}
	if res.CommandType != CommandMemory {
		t.Fatalf("expected memory command type, got %q", res.CommandType)
	}
}

func TestSwitchByPrefix(t *testing.T) {
	a, store := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	first := store.CreateSession("first")
	store.CreateSession("second")

	res, err := a.ProcessQuery(context.Background(), "/switch "+first[:8], "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "Switched to session 'first'") {
		t.Fatalf("unexpected response: %q", res.Response)
	}
	if store.CurrentSession().ID != first {
		t.Fatal("switch by prefix did not move the current session")
	}
}

func TestSwitchAmbiguousPrefixLeavesCurrent(t *testing.T) {
	a, store := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	store.CreateSession("first")
	current := store.CreateSession("second")

	// The empty prefix matches every session.
	res, err := a.ProcessQuery(context.Background(), "/switch ", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "Usage:") {
		t.Fatalf("expected usage for missing argument, got %q", res.Response)
	}

	// Force a prefix collision: uuids are hex, so 17 sessions guarantee
	// two sharing a first character.
	for i := 0; i < 17; i++ {
		store.CreateSession("filler")
	}
	current = store.CreateSession("current")
	seen := make(map[byte]int)
	var collision string
	for _, info := range store.ListSessions() {
		seen[info.ID[0]]++
		if seen[info.ID[0]] > 1 {
			collision = info.ID[:1]
			break
		}
	}
	res, _ = a.ProcessQuery(context.Background(), "/switch "+collision, "")
	if !strings.Contains(res.Response, "ambiguous") {
		t.Fatalf("expected ambiguity message, got %q", res.Response)
	}
	if store.CurrentSession().ID != current {
		t.Fatal("ambiguous switch must not move the current session")
	}

	res, _ = a.ProcessQuery(context.Background(), "/switch zzzz-not-a-session", "")
	if !strings.Contains(res.Response, "not found") {
		t.Fatalf("expected not-found message, got %q", res.Response)
	}
	if store.CurrentSession().ID != current {
		t.Fatal("failed switch must not move the current session")
	}
}

func TestResumeBySessionIDCreatesNoSession(t *testing.T) {
	a, store := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	first := store.CreateSession("restored")
	store.CreateSession("other")

	// Resuming an existing session by prefix must not mint a fresh one
	// before the switch resolves.
	res, err := a.ProcessQuery(context.Background(), "", first[:8])
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.CommandType != CommandEmpty {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if store.CurrentSession().ID != first {
		t.Fatalf("expected current session %s, got %s", first, store.CurrentSession().ID)
	}
	if n := len(store.SessionIDs()); n != 2 {
		t.Fatalf("expected 2 sessions after resume, got %d", n)
	}

	// An unknown id reports not-found without creating a session either.
	res, err = a.ProcessQuery(context.Background(), "", "zzzz-not-a-session")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "not found") {
		t.Fatalf("expected not-found message, got %q", res.Response)
	}
	if n := len(store.SessionIDs()); n != 2 {
		t.Fatalf("failed resume must not create a session, got %d", n)
	}
	if store.CurrentSession().ID != first {
		t.Fatal("failed resume must not move the current session")
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _ := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	res, err := a.ProcessQuery(context.Background(), "/frobnicate now", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "Unknown command '/frobnicate'") {
		t.Fatalf("unexpected response: %q", res.Response)
	}
}

func TestDeleteClearTitleStats(t *testing.T) {
	a, store := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	id := store.CreateSession("scratch")
	store.Append(memoryUserMessage("hi"))

	res, _ := a.ProcessQuery(context.Background(), "/title Renamed", "")
	if !strings.Contains(res.Response, "Renamed") || store.CurrentSession().Title != "Renamed" {
		t.Fatalf("rename failed: %q", res.Response)
	}

	res, _ = a.ProcessQuery(context.Background(), "/stats", "")
	if !strings.Contains(res.Response, "Renamed") || !strings.Contains(res.Response, "1 user") {
		t.Fatalf("unexpected stats: %q", res.Response)
	}

	res, _ = a.ProcessQuery(context.Background(), "/clear", "")
	if !strings.Contains(res.Response, "cleared") || len(store.CurrentSession().Messages) != 0 {
		t.Fatalf("clear failed: %q", res.Response)
	}

	res, _ = a.ProcessQuery(context.Background(), "/delete "+id[:8], "")
	if !strings.Contains(res.Response, "Deleted session") {
		t.Fatalf("delete failed: %q", res.Response)
	}
}

func TestHistoryCommand(t *testing.T) {
	a, store := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	store.CreateSession("hist")
	store.Append(memoryUserMessage("question one"))
	store.Append(memoryUserMessage("question two"))

	res, _ := a.ProcessQuery(context.Background(), "/history 1", "")
	if strings.Contains(res.Response, "question one") || !strings.Contains(res.Response, "question two") {
		t.Fatalf("expected only the last message, got %q", res.Response)
	}
}

func TestResourceAlias(t *testing.T) {
	backend := &capBackend{resources: []*sdk.Resource{
		{URI: "gmail://meeting-emails", Name: "Meeting emails"},
	}}
	a, _ := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}}, backend)

	res, err := a.ProcessQuery(context.Background(), "@meeting-emails", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.CommandType != CommandResource {
		t.Fatalf("expected resource command type, got %q", res.CommandType)
	}
	if res.Response != "line one\nline two" {
		t.Fatalf("unexpected content: %q", res.Response)
	}
	if backend.readURIs[0] != "gmail://meeting-emails" {
		t.Fatalf("alias resolved to wrong uri: %v", backend.readURIs)
	}

	// Dynamic alias routes by scheme even without exact registration.
	res, _ = a.ProcessQuery(context.Background(), "@meeting-emails/abc123", "")
	if res.Response != "line one\nline two" {
		t.Fatalf("dynamic alias failed: %q", res.Response)
	}
	if backend.readURIs[1] != "gmail://meeting-emails/abc123" {
		t.Fatalf("dynamic alias resolved wrong uri: %v", backend.readURIs)
	}
}

func TestUnknownResourceAlias(t *testing.T) {
	a, _ := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	res, err := a.ProcessQuery(context.Background(), "@nonsense", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "Unknown resource '@nonsense'") {
		t.Fatalf("unexpected response: %q", res.Response)
	}
}

func TestPromptCommandRunsFullTurn(t *testing.T) {
	p := &scriptedProvider{completions: []*provider.Completion{{Content: "summary text"}}}
	backend := &capBackend{prompts: []*sdk.Prompt{{Name: "summarize"}}}
	a, store := newTestAgent(p, backend)

	res, err := a.ProcessQuery(context.Background(), "/prompt summarize topic=go", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Response != "summary text" {
		t.Fatalf("unexpected response: %q", res.Response)
	}
	if res.CommandType != CommandChat {
		t.Fatalf("prompt execution is a chat turn, got %q", res.CommandType)
	}

	// The rendered prompt text goes through the loop as the user message.
	last := p.requests[0].Messages[len(p.requests[0].Messages)-1]
	if last.Content != "Please summarize go" {
		t.Fatalf("prompt text not fed to the model: %q", last.Content)
	}
	if got := store.CurrentSession().Messages[0].Content; got != "Please summarize go" {
		t.Fatalf("prompt text not recorded: %q", got)
	}
}

func TestPromptNotFound(t *testing.T) {
	a, _ := newTestAgent(&scriptedProvider{completions: []*provider.Completion{{Content: "x"}}})

	res, err := a.ProcessQuery(context.Background(), "/prompt missing", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Response, "Error getting prompt 'missing'") {
		t.Fatalf("unexpected response: %q", res.Response)
	}
}
