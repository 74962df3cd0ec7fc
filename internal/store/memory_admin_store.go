package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
)

// MemoryAdminStore is an in-memory implementation of AdminStore for
// development and testing.
type MemoryAdminStore struct {
	mu     sync.RWMutex
	admins map[uuid.UUID]*models.Admin
}

// NewMemoryAdminStore creates a new in-memory admin store.
func NewMemoryAdminStore() *MemoryAdminStore {
	return &MemoryAdminStore{
		admins: make(map[uuid.UUID]*models.Admin),
	}
}

// Create creates a new admin account. Email addresses are unique,
// case-insensitively.
func (s *MemoryAdminStore) Create(ctx context.Context, admin *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.admins {
		if strings.EqualFold(existing.Email, admin.Email) {
			return ErrAdminExists
		}
	}

	s.admins[admin.AdminID] = copyAdmin(admin)
	return nil
}

// GetByID retrieves an admin by ID.
func (s *MemoryAdminStore) GetByID(ctx context.Context, adminID uuid.UUID) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admin, ok := s.admins[adminID]
	if !ok {
		return nil, ErrAdminNotFound
	}
	return copyAdmin(admin), nil
}

// GetByEmail retrieves an admin by email, case-insensitively.
func (s *MemoryAdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, admin := range s.admins {
		if strings.EqualFold(admin.Email, email) {
			return copyAdmin(admin), nil
		}
	}
	return nil, ErrAdminNotFound
}

// UpdateStatus updates an admin's account status.
func (s *MemoryAdminStore) UpdateStatus(ctx context.Context, adminID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, ok := s.admins[adminID]
	if !ok {
		return ErrAdminNotFound
	}
	admin.Status = status
	admin.UpdatedAt = time.Now().UTC()
	return nil
}

// SetResetToken stores the hash of an outstanding password reset token.
func (s *MemoryAdminStore) SetResetToken(ctx context.Context, adminID uuid.UUID, tokenHash string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, ok := s.admins[adminID]
	if !ok {
		return ErrAdminNotFound
	}
	admin.ResetTokenHash = tokenHash
	admin.ResetTokenExpiry = &expiry
	admin.UpdatedAt = time.Now().UTC()
	return nil
}

// GetByResetToken looks up an admin holding an unexpired reset token hash.
func (s *MemoryAdminStore) GetByResetToken(ctx context.Context, tokenHash string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	for _, admin := range s.admins {
		if admin.ResetTokenHash == tokenHash && admin.HasValidResetToken(now) {
			return copyAdmin(admin), nil
		}
	}
	return nil, ErrResetTokenInvalid
}

// ConsumeResetToken sets the password hash and clears the presented reset token.
func (s *MemoryAdminStore) ConsumeResetToken(ctx context.Context, tokenHash string, passwordHash []byte) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, admin := range s.admins {
		if admin.ResetTokenHash == tokenHash && admin.HasValidResetToken(now) {
			admin.PasswordHash = append([]byte(nil), passwordHash...)
			admin.ResetTokenHash = ""
			admin.ResetTokenExpiry = nil
			admin.UpdatedAt = now.UTC()
			return admin.AdminID, nil
		}
	}
	return uuid.Nil, ErrResetTokenInvalid
}

// copyAdmin returns a copy to avoid external modifications of stored state.
func copyAdmin(admin *models.Admin) *models.Admin {
	cp := *admin
	cp.PasswordHash = append([]byte(nil), admin.PasswordHash...)
	if admin.ResetTokenExpiry != nil {
		t := *admin.ResetTokenExpiry
		cp.ResetTokenExpiry = &t
	}
	return &cp
}
