package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/parleybot/parley/internal/titles"
)

// Store is the SQLite-backed persistence layer for sessions and per-thread
// title state.
//
// WAL is enabled so reads proceed while a write is in flight; the connection
// pool is capped at one writer.
type Store struct {
	db *sql.DB
}

// Session represents one logical conversation session
type Session struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	Channel    string    `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Open opens (and migrates) the database at path
func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  channel TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS thread_titles (
  session_id TEXT NOT NULL,
  thread_key TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_attempt_at INTEGER NOT NULL DEFAULT 0,
  applied_at INTEGER NOT NULL DEFAULT 0,
  applied_title TEXT NOT NULL DEFAULT '',
  last_proposed_title TEXT NOT NULL DEFAULT '',
  retry_after INTEGER NOT NULL DEFAULT 0,
  last_error_class TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (session_id, thread_key)
);
CREATE INDEX IF NOT EXISTS idx_thread_titles_key ON thread_titles(thread_key);
CREATE INDEX IF NOT EXISTS idx_thread_titles_retry ON thread_titles(status, retry_after);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// GetOrCreate returns an existing session by key or creates a new one
func (s *Store) GetOrCreate(ctx context.Context, sessionKey, channel string) (*Session, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("missing session key")
	}

	sess, err := s.getByKey(ctx, sessionKey)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, channel, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, sessionKey, strings.TrimSpace(channel), now, now,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{
		ID:         id,
		SessionKey: sessionKey,
		Channel:    channel,
		CreatedAt:  time.UnixMilli(now),
		UpdatedAt:  time.UnixMilli(now),
	}, nil
}

func (s *Store) getByKey(ctx context.Context, sessionKey string) (*Session, error) {
	var sess Session
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, channel, created_at, updated_at FROM sessions WHERE name = ?`,
		sessionKey,
	).Scan(&sess.ID, &sess.SessionKey, &sess.Channel, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	return &sess, nil
}

// GetTitleState returns the title state for (sessionID, threadKey), or nil
func (s *Store) GetTitleState(ctx context.Context, sessionID, threadKey string) (*titles.State, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	threadKey = strings.TrimSpace(threadKey)
	if sessionID == "" || threadKey == "" {
		return nil, errors.New("invalid request")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT thread_key, status, attempts, last_attempt_at, applied_at,
       applied_title, last_proposed_title, retry_after, last_error_class
FROM thread_titles
WHERE session_id = ? AND thread_key = ?
`, sessionID, threadKey)
	return scanState(row)
}

// UpdateTitleState applies fn to the current state (creating a fresh record
// when none exists) and writes the result, all in one transaction.
func (s *Store) UpdateTitleState(ctx context.Context, sessionID, threadKey string, fn func(*titles.State)) (*titles.State, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	threadKey = strings.TrimSpace(threadKey)
	if sessionID == "" || threadKey == "" {
		return nil, errors.New("invalid request")
	}
	if fn == nil {
		return nil, errors.New("nil update")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT thread_key, status, attempts, last_attempt_at, applied_at,
       applied_title, last_proposed_title, retry_after, last_error_class
FROM thread_titles
WHERE session_id = ? AND thread_key = ?
`, sessionID, threadKey)
	state, err := scanState(row)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &titles.State{ThreadKey: threadKey}
	}

	fn(state)
	state.ThreadKey = threadKey

	if _, err := tx.ExecContext(ctx, `
INSERT INTO thread_titles (
  session_id, thread_key, status, attempts, last_attempt_at, applied_at,
  applied_title, last_proposed_title, retry_after, last_error_class
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, thread_key) DO UPDATE SET
  status = excluded.status,
  attempts = excluded.attempts,
  last_attempt_at = excluded.last_attempt_at,
  applied_at = excluded.applied_at,
  applied_title = excluded.applied_title,
  last_proposed_title = excluded.last_proposed_title,
  retry_after = excluded.retry_after,
  last_error_class = excluded.last_error_class
`,
		sessionID,
		threadKey,
		string(state.Status),
		state.Attempts,
		state.LastAttemptAt,
		state.AppliedAt,
		state.AppliedTitle,
		state.LastProposedTitle,
		state.RetryAfter,
		string(state.LastErrorClass),
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return state, nil
}

// DeleteTitleState removes the state record for (sessionID, threadKey)
func (s *Store) DeleteTitleState(ctx context.Context, sessionID, threadKey string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM thread_titles WHERE session_id = ? AND thread_key = ?`,
		strings.TrimSpace(sessionID), strings.TrimSpace(threadKey),
	)
	return err
}

// FindAppliedTitle scans all sessions for an applied record with the same
// thread key. Returns nil when no sibling has applied a title.
func (s *Store) FindAppliedTitle(ctx context.Context, threadKey string) (*titles.State, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	threadKey = strings.TrimSpace(threadKey)
	if threadKey == "" {
		return nil, errors.New("missing thread key")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT thread_key, status, attempts, last_attempt_at, applied_at,
       applied_title, last_proposed_title, retry_after, last_error_class
FROM thread_titles
WHERE thread_key = ? AND status = ?
ORDER BY applied_at DESC
LIMIT 1
`, threadKey, string(titles.StatusApplied))
	return scanState(row)
}

// ListDueRetries returns retry_after entries whose cooldown elapsed
func (s *Store) ListDueRetries(ctx context.Context, now int64) ([]titles.DueRetry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, thread_key, status, attempts, last_attempt_at, applied_at,
       applied_title, last_proposed_title, retry_after, last_error_class
FROM thread_titles
WHERE status = ? AND retry_after <= ?
ORDER BY retry_after ASC
LIMIT 100
`, string(titles.StatusRetryAfter), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []titles.DueRetry
	for rows.Next() {
		var d titles.DueRetry
		var status, errClass string
		if err := rows.Scan(
			&d.SessionID,
			&d.ThreadKey,
			&status,
			&d.State.Attempts,
			&d.State.LastAttemptAt,
			&d.State.AppliedAt,
			&d.State.AppliedTitle,
			&d.State.LastProposedTitle,
			&d.State.RetryAfter,
			&errClass,
		); err != nil {
			return nil, err
		}
		d.State.ThreadKey = d.ThreadKey
		d.State.Status = titles.Status(status)
		d.State.LastErrorClass = channelsErrorClass(errClass)
		out = append(out, d)
	}
	return out, rows.Err()
}

// TitleStateRow is one persisted title-state record with its owning session
type TitleStateRow struct {
	SessionID string
	State     titles.State
}

// ListTitleStates returns every persisted title-state record, newest attempts
// first. Used by the CLI inspection command.
func (s *Store) ListTitleStates(ctx context.Context) ([]TitleStateRow, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, thread_key, status, attempts, last_attempt_at, applied_at,
       applied_title, last_proposed_title, retry_after, last_error_class
FROM thread_titles
ORDER BY last_attempt_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TitleStateRow
	for rows.Next() {
		var r TitleStateRow
		var status, errClass string
		if err := rows.Scan(
			&r.SessionID,
			&r.State.ThreadKey,
			&status,
			&r.State.Attempts,
			&r.State.LastAttemptAt,
			&r.State.AppliedAt,
			&r.State.AppliedTitle,
			&r.State.LastProposedTitle,
			&r.State.RetryAfter,
			&errClass,
		); err != nil {
			return nil, err
		}
		r.State.Status = titles.Status(status)
		r.State.LastErrorClass = channelsErrorClass(errClass)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResetThreadKey removes the title state for a thread key across all
// sessions, re-enabling automatic titling for it. Returns the number of
// records removed.
func (s *Store) ResetThreadKey(ctx context.Context, threadKey string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store not initialized")
	}
	threadKey = strings.TrimSpace(threadKey)
	if threadKey == "" {
		return 0, errors.New("missing thread key")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM thread_titles WHERE thread_key = ?`, threadKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanState scans one thread_titles row; sql.ErrNoRows maps to (nil, nil)
func scanState(row *sql.Row) (*titles.State, error) {
	var st titles.State
	var status, errClass string
	err := row.Scan(
		&st.ThreadKey,
		&status,
		&st.Attempts,
		&st.LastAttemptAt,
		&st.AppliedAt,
		&st.AppliedTitle,
		&st.LastProposedTitle,
		&st.RetryAfter,
		&errClass,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st.Status = titles.Status(status)
	st.LastErrorClass = channelsErrorClass(errClass)
	return &st, nil
}
