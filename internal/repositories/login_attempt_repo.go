package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mpslytherin/accounts/internal/database"
	"github.com/mpslytherin/accounts/internal/models"
)

// LoginAttemptRepository persists the per-account login history
type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

// Create appends one attempt. LoginTime defaults to the server clock when zero.
func (r *LoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_history (account_id, login_time, success, ip_address)
		VALUES ($1, COALESCE($2::timestamptz, now()), $3, $4)
		RETURNING id, login_time
	`

	var loginTime any
	if !attempt.LoginTime.IsZero() {
		loginTime = attempt.LoginTime
	}

	err := r.pool.QueryRow(ctx, query,
		attempt.AccountID, loginTime, attempt.Success, attempt.IPAddress,
	).Scan(&attempt.ID, &attempt.LoginTime)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// ListByAccount returns at most limit attempts, newest first.
func (r *LoginAttemptRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, account_id, login_time, success, ip_address
		FROM login_history
		WHERE account_id = $1
		ORDER BY login_time DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login history: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.AccountID, &a.LoginTime, &a.Success, &a.IPAddress); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}
