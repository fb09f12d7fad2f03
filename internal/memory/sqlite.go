package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	last_activity TEXT NOT NULL,
	context       TEXT NOT NULL DEFAULT '{}',
	messages      TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteSnapshotter stores the snapshot in a SQLite database. Save rewrites
// all rows inside one transaction, which keeps the same overwrite semantics
// as the JSON file backend while surviving partial-write crashes.
type SQLiteSnapshotter struct {
	db *sql.DB
}

func NewSQLiteSnapshotter(path string) (*SQLiteSnapshotter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteSnapshotter{db: db}, nil
}

func (s *SQLiteSnapshotter) Save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}

	insert, err := tx.Prepare(`INSERT INTO sessions
		(id, title, created_at, last_activity, context, messages)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	for _, sess := range snap.Sessions {
		contextJSON, err := json.Marshal(sess.Context)
		if err != nil {
			return fmt.Errorf("encoding session %s context: %w", sess.ID, err)
		}
		messagesJSON, err := json.Marshal(sess.Messages)
		if err != nil {
			return fmt.Errorf("encoding session %s messages: %w", sess.ID, err)
		}
		_, err = insert.Exec(
			sess.ID,
			sess.Title,
			sess.CreatedAt.Format(time.RFC3339Nano),
			sess.LastActivity.Format(time.RFC3339Nano),
			string(contextJSON),
			string(messagesJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting session %s: %w", sess.ID, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO store_meta (key, value) VALUES ('current_session_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, snap.CurrentSessionID)
	if err != nil {
		return fmt.Errorf("saving current session pointer: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteSnapshotter) Load() (*Snapshot, error) {
	rows, err := s.db.Query("SELECT id, title, created_at, last_activity, context, messages FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{Sessions: make(map[string]*Session)}
	for rows.Next() {
		var sess Session
		var createdAt, lastActivity, contextJSON, messagesJSON string
		if err := rows.Scan(&sess.ID, &sess.Title, &createdAt, &lastActivity, &contextJSON, &messagesJSON); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing session %s created_at: %w", sess.ID, err)
		}
		if sess.LastActivity, err = time.Parse(time.RFC3339Nano, lastActivity); err != nil {
			return nil, fmt.Errorf("parsing session %s last_activity: %w", sess.ID, err)
		}
		if err := json.Unmarshal([]byte(contextJSON), &sess.Context); err != nil {
			return nil, fmt.Errorf("decoding session %s context: %w", sess.ID, err)
		}
		if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
			return nil, fmt.Errorf("decoding session %s messages: %w", sess.ID, err)
		}
		snap.Sessions[sess.ID] = &sess
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sessions: %w", err)
	}

	err = s.db.QueryRow("SELECT value FROM store_meta WHERE key = 'current_session_id'").
		Scan(&snap.CurrentSessionID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading current session pointer: %w", err)
	}

	if len(snap.Sessions) == 0 && snap.CurrentSessionID == "" {
		return nil, nil
	}
	return snap, nil
}

func (s *SQLiteSnapshotter) Close() error {
	return s.db.Close()
}
