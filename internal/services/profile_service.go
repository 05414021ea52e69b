package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/storage"
	"github.com/mpslytherin/accounts/internal/validation"
	pkglogger "github.com/mpslytherin/accounts/pkg/logger"
)

// ProfileService reads and edits the signed-in account
type ProfileService struct {
	accounts    AccountRepository
	hasher      PasswordHasher
	avatars     *AvatarService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewProfileService(
	accounts AccountRepository,
	hasher PasswordHasher,
	avatars *AvatarService,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *ProfileService {
	return &ProfileService{
		accounts:    accounts,
		hasher:      hasher,
		avatars:     avatars,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ProfileUpdateInput is the body of PUT /api/profile. Empty fields are left unchanged.
type ProfileUpdateInput struct {
	Username string `json:"username" validate:"omitempty,min=3,max=30,username"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	FullName string `json:"fullName" validate:"omitempty,max=100"`
	ClientIP string `json:"-"`
}

// ChangePasswordInput is the body of POST /api/change-password
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72,password"`
	ClientIP        string `json:"-"`
}

func (s *ProfileService) GetProfile(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.accounts.GetActiveByID(ctx, accountID)
	if err != nil {
		return nil, s.lookupError(err, accountID)
	}
	return account, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, accountID int64, in ProfileUpdateInput) (*models.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = validation.NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	current, err := s.accounts.GetActiveByID(ctx, accountID)
	if err != nil {
		return nil, s.lookupError(err, accountID)
	}

	upd := models.ProfileUpdate{FullName: in.FullName}
	if in.Username != "" && in.Username != current.Username {
		upd.Username = in.Username
	}
	if in.Email != "" && in.Email != current.Email {
		upd.Email = in.Email
	}
	if upd.FullName != "" && current.FullName != nil && *current.FullName == upd.FullName {
		upd.FullName = ""
	}
	if upd == (models.ProfileUpdate{}) {
		return current, nil
	}

	if upd.Username != "" {
		taken, err := s.accounts.UsernameTaken(ctx, upd.Username, accountID)
		if err != nil {
			s.logger.Error("failed to check username", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if taken {
			return nil, models.ErrUsernameTaken
		}
	}
	if upd.Email != "" {
		taken, err := s.accounts.EmailTaken(ctx, upd.Email, accountID)
		if err != nil {
			s.logger.Error("failed to check email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if taken {
			return nil, models.ErrEmailTaken
		}
	}

	updated, err := s.accounts.UpdateProfile(ctx, accountID, upd)
	if err != nil {
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update profile", slog.Int64("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	changed := make([]string, 0, 3)
	if upd.Username != "" {
		changed = append(changed, "username")
	}
	if upd.Email != "" {
		changed = append(changed, "email")
	}
	if upd.FullName != "" {
		changed = append(changed, "fullName")
	}
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventProfileUpdated, accountID, in.ClientIP, map[string]string{
		"fields": strings.Join(changed, ","),
	})

	return updated, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *ProfileService) ChangePassword(ctx context.Context, accountID int64, in ChangePasswordInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}

	account, err := s.accounts.GetActiveByID(ctx, accountID)
	if err != nil {
		return s.lookupError(err, accountID)
	}

	if !s.hasher.Verify(in.CurrentPassword, account.PasswordHash) {
		return models.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to update password", slog.Int64("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventPasswordChange, accountID, in.ClientIP, nil)
	return nil
}

// UploadAvatar stores a new avatar and points the account at it. The
// previous avatar is removed best-effort.
func (s *ProfileService) UploadAvatar(ctx context.Context, accountID int64, data []byte, clientIP string) (string, error) {
	account, err := s.accounts.GetActiveByID(ctx, accountID)
	if err != nil {
		return "", s.lookupError(err, accountID)
	}

	avatarURL, err := s.avatars.Save(ctx, data)
	if err != nil {
		return "", err
	}

	if err := s.accounts.UpdateAvatar(ctx, accountID, &avatarURL); err != nil {
		s.avatars.Remove(ctx, avatarURL)
		if errors.Is(err, models.ErrNotFound) {
			return "", err
		}
		s.logger.Error("failed to update avatar", slog.Int64("account_id", accountID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if account.AvatarURL != nil && *account.AvatarURL != avatarURL {
		s.avatars.Remove(ctx, *account.AvatarURL)
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventAvatarUpdated, accountID, clientIP, map[string]string{
		"avatar_url": avatarURL,
	})

	return avatarURL, nil
}

// OpenAvatar streams a stored avatar.
func (s *ProfileService) OpenAvatar(ctx context.Context, key string) (*storage.DownloadResult, error) {
	return s.avatars.Open(ctx, key)
}

func (s *ProfileService) lookupError(err error, accountID int64) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	s.logger.Error("failed to load account", slog.Int64("account_id", accountID), slog.Any("error", err))
	return models.ErrInternalServer
}
