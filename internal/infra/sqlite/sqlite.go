// Package sqlite is the durable local store: opaque state blobs keyed by
// chat, profile or roll slot, plus per-conversation message sequence marks.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forgeworks/forge/internal/domain"
)

// FileName is the database file created under the storage directory.
const FileName = "forge.db"

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Character state, catalog copy and roll slots
		`CREATE TABLE IF NOT EXISTS state_blobs (
			key        TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Last processed message per conversation
		`CREATE TABLE IF NOT EXISTS message_marks (
			conversation TEXT PRIMARY KEY,
			seq          INTEGER NOT NULL,
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// Open creates dir if needed, opens the database file inside it and applies
// migrations.
func Open(dir string) (*DB, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := filepath.Join(filepath.Clean(dir), FileName) +
		"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range Migrations() {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return &DB{db: sqlDB}, nil
}

// Close closes the SQLite handle.
func (db *DB) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	return db.db.Close()
}

// ─── Blob Operations (domain.KVStore) ───────────────────────────────────────

// GetBlob returns the blob at key, or domain.ErrStateNotFound.
func (db *DB) GetBlob(key string) ([]byte, error) {
	var body []byte
	err := db.db.QueryRow(`SELECT body FROM state_blobs WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return body, nil
}

// PutBlob inserts or replaces the blob at key.
func (db *DB) PutBlob(key string, body []byte) error {
	_, err := db.db.Exec(`
		INSERT INTO state_blobs (key, body, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			body       = excluded.body,
			updated_at = datetime('now')
	`, key, body)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// DeleteBlob removes key. Deleting an absent key is not an error.
func (db *DB) DeleteBlob(key string) error {
	if _, err := db.db.Exec(`DELETE FROM state_blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every key starting with prefix, sorted.
func (db *DB) ListKeys(prefix string) ([]string, error) {
	rows, err := db.db.Query(`
		SELECT key FROM state_blobs
		WHERE substr(key, 1, ?) = ?
		ORDER BY key
	`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// BlobUpdatedAt reports when key was last written.
func (db *DB) BlobUpdatedAt(key string) (time.Time, error) {
	var ts string
	err := db.db.QueryRow(`SELECT updated_at FROM state_blobs WHERE key = ?`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, domain.ErrStateNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.DateTime, ts)
}

// ─── Message Marks ──────────────────────────────────────────────────────────

// LastSeq returns the last processed sequence for conversation, or -1.
func (db *DB) LastSeq(conversation string) (int64, error) {
	var seq int64
	err := db.db.QueryRow(`SELECT seq FROM message_marks WHERE conversation = ?`, conversation).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}

// SetLastSeq records seq as processed for conversation.
func (db *DB) SetLastSeq(conversation string, seq int64) error {
	_, err := db.db.Exec(`
		INSERT INTO message_marks (conversation, seq, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(conversation) DO UPDATE SET
			seq        = excluded.seq,
			updated_at = datetime('now')
	`, conversation, seq)
	return err
}

// ResetSeq forgets the mark for conversation.
func (db *DB) ResetSeq(conversation string) error {
	_, err := db.db.Exec(`DELETE FROM message_marks WHERE conversation = ?`, conversation)
	return err
}
