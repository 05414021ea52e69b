package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mpslytherin/accounts/internal/database"
	"github.com/mpslytherin/accounts/internal/models"
)

const accountColumns = `id, username, email, password_hash, full_name, avatar_url, active,
	failed_attempts, locked_until, created_at, last_access_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account

	err := scanner.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.FullName, &a.AvatarURL, &a.Active,
		&a.FailedAttempts, &a.LockedUntil, &a.CreatedAt, &a.LastAccessAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func (r *AccountRepository) GetActiveByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND active = TRUE`

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetActiveByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1 AND active = TRUE`

	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

// UsernameTaken reports whether another account (id != excludeID) holds username.
func (r *AccountRepository) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1 AND id <> $2)`,
		username, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return taken, nil
}

// EmailTaken reports whether another account (id != excludeID) holds email.
func (r *AccountRepository) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1 AND id <> $2)`,
		email, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return taken, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (username, email, password_hash, full_name, avatar_url, active, failed_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, 0, $6)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.Username, account.Email, account.PasswordHash,
		account.FullName, account.AvatarURL, time.Now().UTC(),
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// RecordSuccessfulLogin clears the failure counter and lock and stamps the access time.
func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, last_access_at = $2
		WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record successful login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordFailedLogin increments the failure counter in one statement and
// locks the account until lockUntil once the counter reaches threshold.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, id int64, threshold int, lockUntil time.Time) (*models.LockoutState, error) {
	var state models.LockoutState
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3::timestamptz ELSE locked_until END
		WHERE id = $1
		RETURNING failed_attempts, locked_until`,
		id, threshold, lockUntil,
	).Scan(&state.FailedAttempts, &state.LockedUntil)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &state, nil
}

// UpdateProfile overwrites the non-empty fields of upd.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET username  = COALESCE(NULLIF($2, ''), username),
		    email     = COALESCE(NULLIF($3, ''), email),
		    full_name = COALESCE(NULLIF($4, ''), full_name)
		WHERE id = $1 AND active = TRUE
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, upd.Username, upd.Email, upd.FullName))
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1 AND active = TRUE`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) UpdateAvatar(ctx context.Context, id int64, avatarURL *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET avatar_url = $2 WHERE id = $1 AND active = TRUE`,
		id, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
