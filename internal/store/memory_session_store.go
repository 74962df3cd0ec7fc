package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
)

// MemorySessionStore is an in-memory implementation of SessionStore for
// development and testing.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.RefreshSession
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID]*models.RefreshSession),
	}
}

// Create stores a new refresh session.
func (s *MemorySessionStore) Create(ctx context.Context, session *models.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

// Get retrieves a session by ID.
func (s *MemorySessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}

	cp := *session
	return &cp, nil
}

// Rotate replaces the session's current token ID if the presented one matches.
// A mismatch means a rotated-out credential was presented again; the session
// is revoked on the spot.
func (s *MemorySessionStore) Rotate(ctx context.Context, sessionID, presentedTokenID, nextTokenID uuid.UUID, now time.Time) (*models.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if now.After(session.ExpiresAt) {
		delete(s.sessions, sessionID)
		return nil, ErrSessionExpired
	}
	if session.CurrentTokenID != presentedTokenID {
		delete(s.sessions, sessionID)
		log.Warn().
			Str("session_id", sessionID.String()).
			Str("admin_id", session.AdminID.String()).
			Msg("refresh token reuse detected, session revoked")
		return nil, ErrTokenReused
	}

	session.CurrentTokenID = nextTokenID
	session.LastRefreshedAt = now

	cp := *session
	return &cp, nil
}

// Delete removes a session (logout).
func (s *MemorySessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// DeleteExpired removes all sessions past their absolute expiry.
func (s *MemorySessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// CountActive returns the number of unexpired sessions.
func (s *MemorySessionStore) CountActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for _, session := range s.sessions {
		if now.Before(session.ExpiresAt) {
			count++
		}
	}
	return count, nil
}
