// Package storage is the local SQLite store for sessions, the vision cache
// and pipeline run history.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// TokenPair is the backend session credential.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// StoredSession represents a persisted backend session. Profile separates
// sessions of different backends sharing one database file.
type StoredSession struct {
	Profile     string
	UserID      string
	Email       string
	Tokens      TokenPair
	LastUpdated time.Time
}

// VisionCacheEntry represents a cached detection result.
type VisionCacheEntry struct {
	DetectedItem string
	Confidence   int
}

// SQLiteStore persists sessions with encrypted tokens.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath. encryptionKey
// encrypts token data and must be 32 bytes, see DeriveKey.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Tokens live in this file.
	_ = os.Chmod(dbPath, 0600)

	return store, nil
}

func (s *SQLiteStore) init() error {
	tables := []struct {
		name  string
		query string
	}{
		{"sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			profile TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			encrypted_tokens TEXT NOT NULL,
			last_updated DATETIME NOT NULL
		);`},
		{"vision_cache", `
		CREATE TABLE IF NOT EXISTS vision_cache (
			image_hash TEXT PRIMARY KEY,
			detected_item TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`},
		{"runs", `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			image_ref TEXT NOT NULL,
			detected_item TEXT NOT NULL DEFAULT '',
			listing_id TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`},
	}

	for _, t := range tables {
		if _, err := s.db.Exec(t.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

// LoadSession retrieves the session for profile.
// Returns nil, nil if the session doesn't exist.
func (s *SQLiteStore) LoadSession(profile string) (*StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session := StoredSession{Profile: profile}
	var encryptedTokens string

	err := s.db.QueryRow(
		"SELECT user_id, email, encrypted_tokens, last_updated FROM sessions WHERE profile = ?",
		profile,
	).Scan(&session.UserID, &session.Email, &encryptedTokens, &session.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	tokensJSON, err := Decrypt(encryptedTokens, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}
	if err := json.Unmarshal(tokensJSON, &session.Tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}

	return &session, nil
}

// SaveSession stores or updates a session.
func (s *SQLiteStore) SaveSession(session *StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokensJSON, err := json.Marshal(session.Tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	encryptedTokens, err := Encrypt(tokensJSON, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	session.LastUpdated = time.Now()

	_, err = s.db.Exec(`
		INSERT INTO sessions (profile, user_id, email, encrypted_tokens, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			encrypted_tokens = excluded.encrypted_tokens,
			last_updated = excluded.last_updated
	`, session.Profile, session.UserID, session.Email, encryptedTokens, session.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession removes the session for profile.
func (s *SQLiteStore) DeleteSession(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM sessions WHERE profile = ?", profile); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetVisionCache retrieves a cached detection by image hash.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetVisionCache(imageHash string) (*VisionCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry VisionCacheEntry
	err := s.db.QueryRow(
		"SELECT detected_item, confidence FROM vision_cache WHERE image_hash = ?",
		imageHash,
	).Scan(&entry.DetectedItem, &entry.Confidence)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vision cache: %w", err)
	}
	return &entry, nil
}

// SetVisionCache stores a detection in the cache.
func (s *SQLiteStore) SetVisionCache(imageHash string, entry *VisionCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO vision_cache (image_hash, detected_item, confidence)
		VALUES (?, ?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			detected_item = excluded.detected_item,
			confidence = excluded.confidence,
			created_at = CURRENT_TIMESTAMP
	`, imageHash, entry.DetectedItem, entry.Confidence)
	if err != nil {
		return fmt.Errorf("failed to cache vision result: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
