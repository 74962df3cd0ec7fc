package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"
)

// Store holds the current session and persists it to disk so that a restart
// can restore an in-progress session. At most one session is live per store.
type Store struct {
	mu   sync.Mutex
	path string // empty disables persistence
	cap  time.Duration
	sess *Session
}

// persistedState is the on-disk envelope. The checksum covers the session
// bytes so a truncated or corrupted file is refused rather than restored.
type persistedState struct {
	Version  int             `json:"version"`
	Session  json.RawMessage `json:"session"`
	Checksum uint64          `json:"checksum"`
}

// NewStore creates a session store. If path is empty the store is
// memory-only. absoluteCap bounds what Restore will accept.
func NewStore(path string, absoluteCap time.Duration) *Store {
	return &Store{path: path, cap: absoluteCap}
}

// Set installs a new session, replacing any previous one.
func (s *Store) Set(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := sess
	s.sess = &cp
	return s.persistLocked()
}

// Get returns a copy of the current session, or nil when logged out.
func (s *Store) Get() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return nil
	}
	cp := *s.sess
	return &cp
}

// AccessToken returns the current access token, if a session is live.
func (s *Store) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return "", false
	}
	return s.sess.AccessToken, true
}

// UpdateAccessToken replaces the access token after a renewal. SessionStart
// and LastActivity are left untouched.
func (s *Store) UpdateAccessToken(token string, issuedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return ErrNotLoggedIn
	}
	s.sess.AccessToken = token
	s.sess.IssuedAt = issuedAt
	s.sess.ExpiresAt = expiresAt
	return s.persistLocked()
}

// Touch records user activity.
func (s *Store) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return
	}
	s.sess.LastActivity = now
	if err := s.persistLocked(); err != nil {
		log.Warn().Err(err).Msg("failed to persist session activity")
	}
}

// Clear drops the session and removes the persisted file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess = nil
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Restore loads a persisted session from disk. It refuses to restore when
// the file is missing or corrupted, or when the absolute session cap has
// already elapsed since SessionStart; in the latter case the stale file is
// removed so the next restore does not see it again.
func (s *Store) Restore(now time.Time) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to read session file")
		}
		return nil
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("session file is not valid JSON")
		return nil
	}

	if computeChecksum(state.Session) != state.Checksum {
		log.Warn().Str("path", s.path).Msg("session file checksum mismatch, refusing to restore")
		_ = os.Remove(s.path)
		return nil
	}

	var sess Session
	if err := json.Unmarshal(state.Session, &sess); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to decode persisted session")
		return nil
	}

	if now.Sub(sess.SessionStart) > s.cap {
		log.Info().
			Time("session_start", sess.SessionStart).
			Dur("cap", s.cap).
			Msg("persisted session is past the absolute cap, refusing to restore")
		_ = os.Remove(s.path)
		return nil
	}

	s.sess = &sess
	cp := sess
	return &cp
}

// persistLocked writes the session file atomically. Callers hold s.mu.
func (s *Store) persistLocked() error {
	if s.path == "" || s.sess == nil {
		return nil
	}

	payload, err := json.Marshal(s.sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	state := persistedState{
		Version:  1,
		Session:  payload,
		Checksum: computeChecksum(payload),
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session envelope: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Write to temp file first, then atomic rename
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save session file: %w", err)
	}

	return nil
}

// computeChecksum computes the CRC64-NVME checksum of the session payload.
func computeChecksum(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
