package auth

import (
	"context"
	"net/http"

	"github.com/mpslytherin/accounts/internal/models"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const accountIDContextKey contextKey = "account_id"

// SessionValidator is satisfied by *SessionManager
type SessionValidator interface {
	Validate(token string) (*models.SessionClaims, error)
}

// RequireSession rejects requests without a valid session cookie and puts
// the account ID into the request context for downstream handlers.
func RequireSession(sessions SessionValidator, cookies CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetSessionCookie(r, cookies)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			claims, err := sessions.Validate(token)
			if err != nil {
				ClearSessionCookie(w, cookies)
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			accountID, err := claims.AccountID()
			if err != nil {
				ClearSessionCookie(w, cookies)
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

// WithAccountID returns a copy of ctx carrying accountID
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountIDContextKey, accountID)
}

// AccountIDFromContext extracts the authenticated account ID
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDContextKey).(int64)
	return id, ok
}
