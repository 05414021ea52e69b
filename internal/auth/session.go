package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mpslytherin/accounts/internal/models"
)

// SessionManager issues and validates the signed session token carried in
// the session cookie.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a session token for accountID and returns it with its expiry.
func (sm *SessionManager) Issue(accountID int64) (string, time.Time, error) {
	now := sm.now()
	expiresAt := now.Add(sm.ttl)

	claims := &models.SessionClaims{
		Type: models.SessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(accountID, 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(sm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate verifies signature, algorithm, expiry and token type.
// Every failure is reported as models.ErrInvalidSession.
func (sm *SessionManager) Validate(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return sm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSession, err)
	}

	if claims.Type != models.SessionTokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrInvalidSession, claims.Type)
	}

	if id, err := claims.AccountID(); err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: malformed subject %q", models.ErrInvalidSession, claims.Subject)
	}

	return claims, nil
}
