package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mpslytherin/accounts/internal/models"
)

// Unique constraint names from the migrations. Collisions on these map to
// field-specific conflict errors.
const (
	constraintAccountsUsername = "accounts_username_key"
	constraintAccountsEmail    = "accounts_email_key"
)

func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case constraintAccountsUsername:
				return models.ErrUsernameTaken
			case constraintAccountsEmail:
				return models.ErrEmailTaken
			}
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		}
	}

	return err
}
