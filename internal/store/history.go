package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wxrelay/wxrelay/internal/bus"
)

// Record is one append-only history entry. Records are never mutated or
// deleted once written; ordering is insertion order, not wall-clock
// order, since timestamps originate from the source platform.
type Record struct {
	Timestamp  float64         `json:"timestamp"`
	Direction  string          `json:"direction"` // "received" or "sent"
	Sender     string          `json:"sender"`
	Type       bus.MessageType `json:"type"`
	Content    string          `json:"content"`
	MessageID  string          `json:"message_id"`
	SessionKey string          `json:"session_key,omitempty"`
	Image      *ImageMeta      `json:"image,omitempty"`
}

const (
	DirectionReceived = "received"
	DirectionSent     = "sent"
)

// AppendHistory appends one record to the session's log. The file is
// opened, written, flushed and closed on every call so a crash between
// events cannot leave a dangling handle. Write failures are returned to
// the caller; silent loss would corrupt the conversational record.
func (s *Store) AppendHistory(scope bus.Scope, sessionID string, rec Record) error {
	dir := s.sessionDir(scope, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "history.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush history log: %w", err)
	}
	return nil
}

// LoadHistory returns the session's full log in insertion order.
// Malformed lines are skipped individually rather than failing the read.
func (s *Store) LoadHistory(scope bus.Scope, sessionID string) ([]Record, error) {
	path := filepath.Join(s.sessionDir(scope, sessionID), "history.jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn().Str("session", sessionID).Err(err).Msg("skipping malformed history line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history log: %w", err)
	}
	return records, nil
}
