package models

import "time"

// LoginAttempt is one row of an account's login history
type LoginAttempt struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	LoginTime time.Time `db:"login_time"`
	Success   bool      `db:"success"`
	IPAddress string    `db:"ip_address"`
}
