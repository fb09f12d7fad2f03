package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NullSnapshotter{}, 0, nil)
}

func TestAppendCreatesSession(t *testing.T) {
	s := newTestStore(t)

	if s.CurrentSession() != nil {
		t.Fatal("expected no current session on a fresh store")
	}

	s.Append(NewMessage(provider.RoleUser, "hello"))

	sess := s.CurrentSession()
	if sess == nil {
		t.Fatal("expected append to auto-create a session")
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sess.Messages))
	}
	if sess.Title == "" {
		t.Fatal("expected auto-created session to have a default title")
	}
}

func TestHistoryOrderIgnoresTimestamps(t *testing.T) {
	s := newTestStore(t)
	s.CreateSession("ordering")

	// Skewed timestamps must not reorder history: append order is
	// authoritative.
	first := NewMessage(provider.RoleUser, "first")
	first.Timestamp = time.Now().Add(time.Hour)
	second := NewMessage(provider.RoleAssistant, "second")
	second.Timestamp = time.Now().Add(-time.Hour)
	s.Append(first)
	s.Append(second)

	hist := s.History(10)
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}
	if hist[0].Content != "first" || hist[1].Content != "second" {
		t.Fatalf("history out of append order: %q, %q", hist[0].Content, hist[1].Content)
	}
}

func TestHistoryLimit(t *testing.T) {
	s := newTestStore(t)
	s.CreateSession("limited")

	for i := 0; i < 15; i++ {
		s.Append(NewMessage(provider.RoleUser, "msg"))
	}

	if got := len(s.History(10)); got != 10 {
		t.Fatalf("expected 10 messages, got %d", got)
	}
	if got := len(s.History(0)); got != 15 {
		t.Fatalf("expected all 15 messages with no limit, got %d", got)
	}
}

func TestHistoryProjection(t *testing.T) {
	s := newTestStore(t)
	s.CreateSession("projection")

	calls := []provider.ToolCall{{
		ID:   "call_1",
		Type: "function",
		Function: provider.FunctionCall{
			Name:      "search",
			Arguments: `{"q":"weather"}`,
		},
	}}
	s.Append(NewMessage(provider.RoleUser, "what's the weather"))
	s.Append(NewAssistantMessage("", calls))
	s.Append(NewToolMessage("call_1", "sunny"))

	hist := s.History(10)
	if len(hist) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(hist))
	}
	if len(hist[1].ToolCalls) != 1 || hist[1].ToolCalls[0].ID != "call_1" {
		t.Fatalf("assistant tool calls not preserved: %+v", hist[1].ToolCalls)
	}
	if hist[2].Role != provider.RoleTool || hist[2].ToolCallID != "call_1" {
		t.Fatalf("tool message projection wrong: %+v", hist[2])
	}
	if hist[2].Content != "sunny" {
		t.Fatalf("tool message content wrong: %q", hist[2].Content)
	}
}

func TestSwitchUnknownSession(t *testing.T) {
	s := newTestStore(t)
	before := s.CreateSession("home")

	if s.Switch("no-such-id") {
		t.Fatal("expected switch to unknown id to fail")
	}
	if s.CurrentSession().ID != before {
		t.Fatal("failed switch must not change the current session")
	}
}

func TestDeleteReassignsCurrent(t *testing.T) {
	s := newTestStore(t)

	a := s.CreateSession("a")
	b := s.CreateSession("b")
	s.sessions[a].LastActivity = time.Now().Add(-2 * time.Hour)
	s.sessions[b].LastActivity = time.Now().Add(-time.Hour)
	c := s.CreateSession("c")

	if !s.Delete(c) {
		t.Fatal("expected delete of current session to succeed")
	}
	// b is the most recently active survivor.
	if cur := s.CurrentSession(); cur == nil || cur.ID != b {
		t.Fatalf("expected current to move to %s, got %+v", b, cur)
	}

	s.Delete(b)
	s.Delete(a)
	if s.CurrentSession() != nil {
		t.Fatal("expected no current session after deleting everything")
	}
}

func TestDeleteNonCurrentKeepsCurrent(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateSession("a")
	b := s.CreateSession("b")

	if !s.Delete(a) {
		t.Fatal("expected delete to succeed")
	}
	if s.CurrentSession().ID != b {
		t.Fatal("deleting a non-current session must not move the pointer")
	}
}

func TestEvictionKeepsMostRecentlyActive(t *testing.T) {
	s := NewStore(NullSnapshotter{}, 3, nil)

	a := s.CreateSession("a")
	s.sessions[a].LastActivity = time.Now().Add(-3 * time.Hour)
	b := s.CreateSession("b")
	s.sessions[b].LastActivity = time.Now().Add(-2 * time.Hour)
	c := s.CreateSession("c")
	s.sessions[c].LastActivity = time.Now().Add(-time.Hour)

	d := s.CreateSession("d")

	if len(s.SessionIDs()) != 3 {
		t.Fatalf("expected 3 sessions after eviction, got %d", len(s.SessionIDs()))
	}
	if _, ok := s.sessions[a]; ok {
		t.Fatal("expected least-recently-active session to be evicted")
	}
	for _, id := range []string{b, c, d} {
		if _, ok := s.sessions[id]; !ok {
			t.Fatalf("session %s should have survived eviction", id)
		}
	}
}

func TestListSessionsOrderAndCurrentFlag(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateSession("old")
	s.sessions[a].LastActivity = time.Now().Add(-time.Hour)
	b := s.CreateSession("new")

	infos := s.ListSessions()
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	if infos[0].ID != b || !infos[0].IsCurrent {
		t.Fatalf("expected most recent session first and current: %+v", infos[0])
	}
	if infos[1].ID != a || infos[1].IsCurrent {
		t.Fatalf("expected older session second and not current: %+v", infos[1])
	}
}

func TestClearAndRename(t *testing.T) {
	s := newTestStore(t)
	s.CreateSession("before")
	s.Append(NewMessage(provider.RoleUser, "hi"))

	s.ClearCurrent()
	if n := len(s.CurrentSession().Messages); n != 0 {
		t.Fatalf("expected cleared session, got %d messages", n)
	}

	s.RenameCurrent("after")
	if got := s.CurrentSession().Title; got != "after" {
		t.Fatalf("expected title %q, got %q", "after", got)
	}
}

func TestStatsCurrent(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.StatsCurrent(); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	s.CreateSession("stats")
	s.Append(NewMessage(provider.RoleUser, "q"))
	s.Append(NewAssistantMessage("a", nil))
	s.Append(NewToolMessage("call_1", "result"))

	stats, err := s.StatsCurrent()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 3 || stats.UserMessages != 1 ||
		stats.AssistantMessages != 1 || stats.ToolMessages != 1 {
		t.Fatalf("wrong counts: %+v", stats)
	}
	if stats.Duration == "" {
		t.Fatal("expected a formatted duration")
	}
}

func TestStorePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")

	s1 := NewStore(NewFileSnapshotter(path), 0, nil)
	id := s1.CreateSession("durable")
	s1.Append(NewMessage(provider.RoleUser, "remember me"))
	s1.Append(NewAssistantMessage("", []provider.ToolCall{{
		ID:       "call_9",
		Type:     "function",
		Function: provider.FunctionCall{Name: "recall", Arguments: "{}"},
	}}))
	s1.Append(NewToolMessage("call_9", "done"))

	s2 := NewStore(NewFileSnapshotter(path), 0, nil)
	sess := s2.CurrentSession()
	if sess == nil || sess.ID != id {
		t.Fatalf("expected current session %s after reload, got %+v", id, sess)
	}
	if len(sess.Messages) != 3 {
		t.Fatalf("expected 3 messages after reload, got %d", len(sess.Messages))
	}
	if sess.Messages[1].ToolCalls[0].ID != "call_9" {
		t.Fatal("tool call lost across reload")
	}
	if sess.Messages[2].ToolCallID != "call_9" {
		t.Fatal("tool call id lost across reload")
	}
}
