// Package tokens signs and verifies the two credential types used by the
// dashboard: short-lived access tokens carried in Authorization headers, and
// longer-lived refresh tokens transported via a protected cookie. Each type is
// signed with its own HMAC secret so a leaked access secret cannot mint
// refresh credentials.
package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
)

// Sentinel errors
var (
	// ErrInvalidToken is returned for malformed, mis-signed, or mistyped tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

const issuer = "pathlab-admin"

// AccessClaims are the identity claims carried by an access token.
type AccessClaims struct {
	Email    string `json:"email"`
	FullName string `json:"name"`
	jwt.RegisteredClaims
}

// AdminID returns the subject claim parsed as a UUID.
func (c *AccessClaims) AdminID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// RefreshClaims are the claims carried by a refresh token. The token carries
// no identity beyond the subject; SessionID and ID (jti) tie it to the
// server-side rotation record.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer signs and verifies access and refresh tokens.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
}

// NewSigner creates a signer from the two signing secrets. Both secrets are
// required, must be at least 32 bytes, and must differ from each other.
func NewSigner(accessSecret, refreshSecret []byte, accessTTL time.Duration) (*Signer, error) {
	if len(accessSecret) < 32 {
		return nil, errors.New("access token secret must be at least 32 bytes")
	}
	if len(refreshSecret) < 32 {
		return nil, errors.New("refresh token secret must be at least 32 bytes")
	}
	if hmac.Equal(accessSecret, refreshSecret) {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if accessTTL <= 0 {
		return nil, errors.New("access token TTL must be greater than 0")
	}

	return &Signer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Signer) AccessTTL() time.Duration {
	return s.accessTTL
}

// SignAccess signs a new access token for the given admin.
func (s *Signer) SignAccess(admin *models.Admin, now time.Time) (string, error) {
	claims := AccessClaims{
		Email:    admin.Email,
		FullName: admin.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.AdminID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess verifies an access token and returns its claims.
func (s *Signer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.verify(token, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if _, err := claims.AdminID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignRefresh signs a refresh token tied to a session and a rotation token ID.
// The expiry is the session's fixed absolute expiry, so rotation never extends
// the credential's life.
func (s *Signer) SignRefresh(adminID, sessionID, tokenID uuid.UUID, now, expiresAt time.Time) (string, error) {
	claims := RefreshClaims{
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyRefresh verifies a refresh token and returns its claims.
func (s *Signer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.verify(token, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.SessionID); err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Signer) verify(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("invalid signing method")
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// Fingerprint returns a short Base58 digest of a token, safe for logging.
// Tokens themselves must never appear in logs.
func Fingerprint(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:8])
}
