// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history mirrors the visible transcript to local durable storage,
// so a restarted client reopens with its messages intact.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/alialegal/alia-cli/internal/model"
)

// messagesKey is the single storage key holding the serialized transcript.
const messagesKey = "chat-messages"

// =============================================================================
// STORE
// =============================================================================

// Store is a single-key kv table in a local sqlite file.
//
// Volatile message fields (audio payloads, object URLs) are stripped before
// save: audio messages lose playability after a reload, which is accepted. A
// corrupt stored payload fails open: it is logged and treated as an empty
// transcript, never blocking startup.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the history database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save serializes the message list under the transcript key, replacing the
// previous value, with volatile fields stripped. Call it on every change to
// the visible list.
func (s *Store) Save(messages []model.Message) error {
	stripped := make([]model.Message, len(messages))
	for i, m := range messages {
		stripped[i] = m.StripVolatile()
	}

	data, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Errorf("failed to serialize messages: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		messagesKey, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

// Load returns the saved transcript. A missing key yields an empty list; a
// corrupt payload is logged as a warning and also yields an empty list.
func (s *Store) Load() ([]model.Message, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, messagesKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		s.log.Warn("corrupt saved transcript, starting empty", zap.Error(err))
		return []model.Message{}, nil
	}
	return messages, nil
}

// Clear removes the saved transcript.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, messagesKey)
	return err
}
