package tokens

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
)

var (
	testAccessSecret  = []byte("0123456789abcdef0123456789abcdef")
	testRefreshSecret = []byte("fedcba9876543210fedcba9876543210")
)

func newTestSigner(t *testing.T, accessTTL time.Duration) *Signer {
	t.Helper()
	signer, err := NewSigner(testAccessSecret, testRefreshSecret, accessTTL)
	require.NoError(t, err)
	return signer
}

func testAdmin() *models.Admin {
	return &models.Admin{
		AdminID:  uuid.Must(uuid.NewV7()),
		Email:    "jane@pathlab.example",
		FullName: "Jane Doe",
		Status:   models.AdminStatusApproved,
	}
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner([]byte("short"), testRefreshSecret, time.Minute)
	require.Error(t, err)

	_, err = NewSigner(testAccessSecret, []byte("short"), time.Minute)
	require.Error(t, err)

	_, err = NewSigner(testAccessSecret, testAccessSecret, time.Minute)
	require.Error(t, err, "identical secrets must be rejected")

	_, err = NewSigner(testAccessSecret, testRefreshSecret, 0)
	require.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	signer := newTestSigner(t, 15*time.Minute)
	admin := testAdmin()

	token, err := signer.SignAccess(admin, time.Now())
	require.NoError(t, err)

	claims, err := signer.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, admin.Email, claims.Email)
	require.Equal(t, admin.FullName, claims.FullName)

	id, err := claims.AdminID()
	require.NoError(t, err)
	require.Equal(t, admin.AdminID, id)
}

func TestAccessTokenExpired(t *testing.T) {
	signer := newTestSigner(t, time.Minute)

	// Issue a token far enough in the past that leeway does not save it
	token, err := signer.SignAccess(testAdmin(), time.Now().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = signer.VerifyAccess(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	signer := newTestSigner(t, time.Minute)
	other, err := NewSigner([]byte("another-32-byte-secret-value-xyz"), testRefreshSecret, time.Minute)
	require.NoError(t, err)

	token, err := signer.SignAccess(testAdmin(), time.Now())
	require.NoError(t, err)

	_, err = other.VerifyAccess(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	signer := newTestSigner(t, time.Minute)

	adminID := uuid.Must(uuid.NewV7())
	sessionID := uuid.Must(uuid.NewV7())
	tokenID := uuid.Must(uuid.NewV7())
	now := time.Now()

	token, err := signer.SignRefresh(adminID, sessionID, tokenID, now, now.Add(8*time.Hour))
	require.NoError(t, err)

	claims, err := signer.VerifyRefresh(token)
	require.NoError(t, err)
	require.Equal(t, sessionID.String(), claims.SessionID)
	require.Equal(t, tokenID.String(), claims.ID)
	require.Equal(t, adminID.String(), claims.Subject)
}

func TestRefreshTokenNotValidAsAccess(t *testing.T) {
	signer := newTestSigner(t, time.Minute)

	now := time.Now()
	token, err := signer.SignRefresh(uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), now, now.Add(time.Hour))
	require.NoError(t, err)

	_, err = signer.VerifyAccess(token)
	require.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are signed with a different secret")
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("some.jwt.token")
	require.NotEmpty(t, fp)
	require.Less(t, len(fp), 16, "fingerprints should be short")
	require.Equal(t, fp, Fingerprint("some.jwt.token"))
	require.NotEqual(t, fp, Fingerprint("another.jwt.token"))
}
