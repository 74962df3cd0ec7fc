package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSession(now time.Time) Session {
	return Session{
		AccessToken: "access-token",
		Identity: Identity{
			AdminID:  "0191a2b3-0000-7000-8000-000000000001",
			Email:    "jordan@pathlab.example",
			FullName: "Jordan Lee",
		},
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		SessionStart: now,
		LastActivity: now,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path, 10*time.Hour)

	now := time.Now().Truncate(time.Second)
	assert.NoError(store.Set(testSession(now)))

	got := store.Get()
	assert.NotNil(got)
	assert.Equal("access-token", got.AccessToken)
	assert.Equal("jordan@pathlab.example", got.Identity.Email)

	token, ok := store.AccessToken()
	assert.True(ok)
	assert.Equal("access-token", token)

	// A second store restores from the same file.
	restored := NewStore(path, 10*time.Hour).Restore(now.Add(time.Minute))
	assert.NotNil(restored)
	assert.Equal("access-token", restored.AccessToken)
	assert.True(restored.SessionStart.Equal(now))
}

func TestStoreRestoreMissingFile(t *testing.T) {
	assert := require.New(t)

	store := NewStore(filepath.Join(t.TempDir(), "session.json"), 10*time.Hour)
	assert.Nil(store.Restore(time.Now()))
}

func TestStoreRestoreRefusesPastCap(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path, 10*time.Hour)

	now := time.Now()
	assert.NoError(store.Set(testSession(now)))

	// Exactly at the cap is still restorable, past it is not.
	assert.Nil(NewStore(path, 10*time.Hour).Restore(now.Add(10*time.Hour + time.Second)))

	// The stale file was removed.
	_, err := os.Stat(path)
	assert.True(os.IsNotExist(err))
}

func TestStoreRestoreRefusesCorruptedFile(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path, 10*time.Hour)

	now := time.Now()
	assert.NoError(store.Set(testSession(now)))

	// Flip the checksum so the payload no longer matches.
	data, err := os.ReadFile(path)
	assert.NoError(err)

	var state persistedState
	assert.NoError(json.Unmarshal(data, &state))
	state.Checksum++
	tampered, err := json.Marshal(state)
	assert.NoError(err)
	assert.NoError(os.WriteFile(path, tampered, 0600))

	assert.Nil(NewStore(path, 10*time.Hour).Restore(now))

	_, err = os.Stat(path)
	assert.True(os.IsNotExist(err))
}

func TestStoreUpdateAccessToken(t *testing.T) {
	assert := require.New(t)

	store := NewStore("", 10*time.Hour)

	now := time.Now()
	assert.ErrorIs(store.UpdateAccessToken("new", now, now.Add(time.Hour)), ErrNotLoggedIn)

	assert.NoError(store.Set(testSession(now)))

	later := now.Add(55 * time.Minute)
	assert.NoError(store.UpdateAccessToken("rotated", later, later.Add(time.Hour)))

	got := store.Get()
	assert.Equal("rotated", got.AccessToken)
	assert.True(got.IssuedAt.Equal(later))

	// SessionStart is never moved by a renewal.
	assert.True(got.SessionStart.Equal(now))
}

func TestStoreTouch(t *testing.T) {
	assert := require.New(t)

	store := NewStore("", 10*time.Hour)

	// Touch with no session is a no-op.
	store.Touch(time.Now())

	now := time.Now()
	assert.NoError(store.Set(testSession(now)))

	later := now.Add(5 * time.Minute)
	store.Touch(later)
	assert.True(store.Get().LastActivity.Equal(later))
}

func TestStoreClear(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path, 10*time.Hour)

	assert.NoError(store.Set(testSession(time.Now())))
	assert.NoError(store.Clear())

	assert.Nil(store.Get())
	_, ok := store.AccessToken()
	assert.False(ok)

	_, err := os.Stat(path)
	assert.True(os.IsNotExist(err))

	// Clearing twice is fine.
	assert.NoError(store.Clear())
}
