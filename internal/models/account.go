package models

import "time"

type Account struct {
	ID             int64
	Username       string
	Email          string
	PasswordHash   string
	FullName       *string
	AvatarURL      *string
	Active         bool
	FailedAttempts int
	LockedUntil    *time.Time // Temporary lock expiration, nil when never locked
	CreatedAt      time.Time
	LastAccessAt   *time.Time
}

// IsLocked reports whether the account is inside an active lockout window.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockoutState is the counter state after a failed login has been recorded.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// ProfileUpdate carries the editable profile fields. Empty strings leave
// the stored value unchanged.
type ProfileUpdate struct {
	Username string
	Email    string
	FullName string
}
