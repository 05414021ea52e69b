package models

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenType marks a JWT as a browser session credential
const SessionTokenType = "session"

// SessionClaims are the claims carried in the session cookie.
// Subject holds the decimal account ID.
type SessionClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *SessionClaims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}
