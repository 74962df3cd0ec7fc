package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
)

// seedAdmin is one admin account entry in a seed file.
type seedAdmin struct {
	Email      string `yaml:"email"`
	FullName   string `yaml:"full_name"`
	Department string `yaml:"department"`
	Status     string `yaml:"status"`
	Password   string `yaml:"password"`
}

// SeedAdmins loads admin accounts from a YAML file into the store. Intended
// for the memory store in development; existing accounts are left untouched.
func SeedAdmins(ctx context.Context, admins AdminStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var entries []seedAdmin
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.Email == "" {
			return count, errors.New("seed entry missing email")
		}

		status := entry.Status
		if status == "" {
			status = models.AdminStatusPending
		}

		var passwordHash []byte
		if entry.Password != "" {
			passwordHash, err = bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.DefaultCost)
			if err != nil {
				return count, fmt.Errorf("failed to hash seed password for %s: %w", entry.Email, err)
			}
		}

		now := time.Now().UTC()
		admin := &models.Admin{
			AdminID:      uuid.Must(uuid.NewV7()),
			Email:        entry.Email,
			FullName:     entry.FullName,
			Department:   entry.Department,
			Status:       status,
			PasswordHash: passwordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := admins.Create(ctx, admin); err != nil {
			if errors.Is(err, ErrAdminExists) {
				continue
			}
			return count, fmt.Errorf("failed to seed admin %s: %w", entry.Email, err)
		}
		count++
	}

	log.Info().Int("count", count).Str("path", path).Msg("seeded admin accounts")

	return count, nil
}
