package memory

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

// ErrNoSession is returned by operations that require an active session.
var ErrNoSession = errors.New("no active session")

// DefaultMaxSessions caps the number of retained sessions; the
// least-recently-active sessions are evicted silently past the cap.
const DefaultMaxSessions = 50

// Store holds all sessions and the current-session pointer. Every mutating
// operation rewrites the full snapshot through the Snapshotter before
// returning; a failed write is logged and the in-memory state stands.
//
// All operations are guarded by a single mutex so the serialize-and-overwrite
// step cannot interleave between concurrent callers.
type Store struct {
	mu          sync.Mutex
	snap        Snapshotter
	maxSessions int
	logger      *slog.Logger

	sessions map[string]*Session
	current  string
}

// NewStore loads the snapshot (if any) and returns a ready store. A missing
// or unreadable snapshot yields an empty store; load failures are logged,
// never fatal.
func NewStore(snap Snapshotter, maxSessions int, logger *slog.Logger) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		snap:        snap,
		maxSessions: maxSessions,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}

	loaded, err := snap.Load()
	if err != nil {
		logger.Warn("loading conversation memory failed, starting empty", "error", err)
		return s
	}
	if loaded != nil {
		for id, sess := range loaded.Sessions {
			s.sessions[id] = sess
		}
		if _, ok := s.sessions[loaded.CurrentSessionID]; ok {
			s.current = loaded.CurrentSessionID
		}
	}
	return s
}

// CreateSession allocates a new session, makes it current, and evicts past
// the cap. An empty title gets a creation-time-derived default.
func (s *Store) CreateSession(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSessionLocked(title)
}

func (s *Store) createSessionLocked(title string) string {
	sess := newSession(title)
	s.sessions[sess.ID] = sess
	s.current = sess.ID
	s.evictLocked()
	s.persistLocked()
	return sess.ID
}

// CurrentSession returns the current session, or nil if none.
func (s *Store) CurrentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Store) currentLocked() *Session {
	if s.current == "" {
		return nil
	}
	return s.sessions[s.current]
}

// Switch makes the given session current and refreshes its activity
// timestamp. Returns false if the id is unknown.
func (s *Store) Switch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.current = id
	sess.LastActivity = time.Now()
	s.persistLocked()
	return true
}

// Append adds a message to the current session, creating one first if none
// is current. The snapshot is written before Append returns.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentLocked() == nil {
		s.createSessionLocked("")
	}
	sess := s.currentLocked()
	sess.Messages = append(sess.Messages, msg)
	sess.LastActivity = time.Now()
	s.persistLocked()
}

// History returns the last limit messages of the current session projected
// into the shape the completion API expects: tool messages carry only their
// correlation id and content, other roles carry content plus any tool calls.
func (s *Store) History(limit int) []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.currentLocked()
	if sess == nil {
		return nil
	}

	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == provider.RoleTool {
			out = append(out, provider.Message{
				Role:       provider.RoleTool,
				ToolCallID: m.ToolCallID,
				Content:    m.Content,
			})
			continue
		}
		out = append(out, provider.Message{
			Role:      m.Role,
			Content:   m.Content,
			ToolCalls: m.ToolCalls,
		})
	}
	return out
}

// ListSessions summarizes all sessions, most recently active first.
func (s *Store) ListSessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, SessionInfo{
			ID:           sess.ID,
			Title:        sess.Title,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivity,
			MessageCount: len(sess.Messages),
			IsCurrent:    sess.ID == s.current,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActivity.After(infos[j].LastActivity)
	})
	return infos
}

// Delete removes a session. If it was current, the most recently active
// survivor becomes current, or the pointer is cleared when none remain.
// Returns false if the id is unknown.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)

	if s.current == id {
		s.current = ""
		var latest *Session
		for _, sess := range s.sessions {
			if latest == nil || sess.LastActivity.After(latest.LastActivity) {
				latest = sess
			}
		}
		if latest != nil {
			s.current = latest.ID
		}
	}
	s.persistLocked()
	return true
}

// ClearCurrent wipes the current session's messages, keeping its identity.
func (s *Store) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.currentLocked()
	if sess == nil {
		return
	}
	sess.Messages = []Message{}
	s.persistLocked()
}

// RenameCurrent sets the current session's title.
func (s *Store) RenameCurrent(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.currentLocked()
	if sess == nil {
		return
	}
	sess.Title = title
	s.persistLocked()
}

// StatsCurrent summarizes the current session, or returns ErrNoSession.
func (s *Store) StatsCurrent() (*SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.currentLocked()
	if sess == nil {
		return nil, ErrNoSession
	}

	stats := &SessionStats{
		SessionID:     sess.ID,
		Title:         sess.Title,
		TotalMessages: len(sess.Messages),
		CreatedAt:     sess.CreatedAt,
		Duration:      time.Since(sess.CreatedAt).Truncate(time.Second).String(),
	}
	for _, m := range sess.Messages {
		switch m.Role {
		case provider.RoleUser:
			stats.UserMessages++
		case provider.RoleAssistant:
			stats.AssistantMessages++
		case provider.RoleTool:
			stats.ToolMessages++
		}
	}
	return stats, nil
}

// SessionIDs returns all session ids (unordered).
func (s *Store) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close releases the underlying snapshot medium.
func (s *Store) Close() error {
	return s.snap.Close()
}

// evictLocked drops the least-recently-active sessions past the cap. The
// current session always survives (it was just touched).
func (s *Store) evictLocked() {
	if len(s.sessions) <= s.maxSessions {
		return
	}

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	for _, sess := range sessions[s.maxSessions:] {
		delete(s.sessions, sess.ID)
	}
}

// persistLocked serializes the full store through the snapshotter. Failures
// degrade to in-memory operation.
func (s *Store) persistLocked() {
	snap := &Snapshot{
		Sessions:         s.sessions,
		CurrentSessionID: s.current,
	}
	if err := s.snap.Save(snap); err != nil {
		s.logger.Warn("saving conversation memory failed", "error", err)
	}
}
