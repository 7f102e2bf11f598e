// Package replydb keeps a local SQLite audit log of answered turns.
// It is a best-effort mirror of the JSONL history used for offline
// inspection (`wxrelay sessions stats`); the JSONL logs stay the source
// of truth and a replydb write failure never fails a turn.
package replydb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reply_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	model      TEXT NOT NULL,
	content    TEXT NOT NULL,
	reply      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reply_log_session ON reply_log(session_id);
`

// DB wraps the SQLite handle. SQLite prefers a single writer, so the
// pool is capped at one connection.
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create replydb dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open replydb: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create replydb schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// RecordReply inserts one answered turn.
func (d *DB) RecordReply(ctx context.Context, sessionID, messageID, model, content, reply string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO reply_log (session_id, message_id, model, content, reply, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, messageID, model, content, reply, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	return nil
}

// SessionStats summarizes answered turns for one session.
type SessionStats struct {
	SessionID string
	Replies   int
	LastReply time.Time
}

type sessionStatsRow struct {
	sessionID string
	replies   int
	lastUnix  int64
}

// Stats returns per-session reply counts, most active first.
func (d *DB) Stats(ctx context.Context) ([]SessionStats, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MAX(created_at)
		 FROM reply_log GROUP BY session_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query reply stats: %w", err)
	}
	defer rows.Close()

	var out []SessionStats
	for rows.Next() {
		var row sessionStatsRow
		if err := rows.Scan(&row.sessionID, &row.replies, &row.lastUnix); err != nil {
			return nil, fmt.Errorf("scan reply stats: %w", err)
		}
		out = append(out, SessionStats{
			SessionID: row.sessionID,
			Replies:   row.replies,
			LastReply: time.Unix(row.lastUnix, 0).UTC(),
		})
	}
	return out, rows.Err()
}
