// Package store persists sessions: a JSON index mapping scope:key to a
// stable session id, one append-only JSONL history log per session, and
// a content-addressed images directory. The index and the logs are the
// only durable state in the relay; everything else resets on restart.
package store

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wxrelay/wxrelay/internal/bus"
)

const indexFileName = "session_index.json"

// IndexEntry is one persisted session in the index.
type IndexEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Scope       string `json:"scope"`
	Key         string `json:"key"`
}

type indexData struct {
	Version  int                   `json:"version"`
	Sessions map[string]IndexEntry `json:"sessions"`
}

// Store owns the on-disk session layout under a base directory:
//
//	<base>/session_index.json
//	<base>/<scope>/<session_id>/history.jsonl
//	<base>/<scope>/<session_id>/images/<name>.<ext>
type Store struct {
	baseDir string
	log     zerolog.Logger

	mu    sync.Mutex
	index indexData
}

// Open loads (or initializes) the session index under baseDir.
func Open(baseDir string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		baseDir: baseDir,
		log:     log.With().Str("component", "store").Logger(),
		index:   indexData{Version: 1, Sessions: make(map[string]IndexEntry)},
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.baseDir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session index: %w", err)
	}
	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parse session index: %w", err)
	}
	if idx.Sessions == nil {
		idx.Sessions = make(map[string]IndexEntry)
	}
	s.index = idx
	return nil
}

// saveIndexLocked writes the index atomically. Callers hold s.mu.
func (s *Store) saveIndexLocked() error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session index: %w", err)
	}
	path := filepath.Join(s.baseDir, indexFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session index: %w", err)
	}
	return nil
}

// ResolveSession returns the stable session id for (scope, key),
// allocating and persisting a new one on first sight. The id is a short
// hash of "scope:key", so re-resolving is idempotent; the display name
// is recorded at creation and not refreshed afterwards.
func (s *Store) ResolveSession(scope bus.Scope, key, displayName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionKey := fmt.Sprintf("%s:%s", scope, key)
	if entry, ok := s.index.Sessions[sessionKey]; ok {
		return entry.ID, nil
	}

	sum := sha1.Sum([]byte(sessionKey))
	id := hex.EncodeToString(sum[:])[:16]
	s.index.Sessions[sessionKey] = IndexEntry{
		ID:          id,
		DisplayName: displayName,
		Scope:       string(scope),
		Key:         key,
	}
	if err := s.saveIndexLocked(); err != nil {
		delete(s.index.Sessions, sessionKey)
		return "", err
	}
	s.log.Debug().Str("scope", string(scope)).Str("key", key).Str("id", id).Msg("session created")
	return id, nil
}

// Sessions returns all index entries, ordered by scope then key.
func (s *Store) Sessions() []IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]IndexEntry, 0, len(s.index.Sessions))
	for _, e := range s.index.Sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Scope != entries[j].Scope {
			return entries[i].Scope < entries[j].Scope
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func (s *Store) sessionDir(scope bus.Scope, sessionID string) string {
	return filepath.Join(s.baseDir, string(scope), sessionID)
}
