package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mpslytherin/accounts/internal/models"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100

	recordTimeout = 5 * time.Second
)

// LoginAttemptRepository defines the login history store
type LoginAttemptRepository interface {
	Create(ctx context.Context, attempt *models.LoginAttempt) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error)
}

// HistoryService records and lists login attempts
type HistoryService struct {
	repo   LoginAttemptRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewHistoryService(repo LoginAttemptRepository, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Record inserts one attempt row. Failures are logged and swallowed; the
// write survives cancellation of the request context.
func (s *HistoryService) Record(ctx context.Context, accountID int64, success bool, ipAddress string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	attempt := &models.LoginAttempt{
		AccountID: accountID,
		LoginTime: s.now().UTC(),
		Success:   success,
		IPAddress: ipAddress,
	}

	if err := s.repo.Create(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.Int64("account_id", accountID),
			slog.Bool("success", success),
			slog.Any("error", err))
	}
}

// Query returns the newest attempts first. A non-positive limit means
// DefaultHistoryLimit; the limit is capped at MaxHistoryLimit.
func (s *HistoryService) Query(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	attempts, err := s.repo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		s.logger.Error("failed to list login history", slog.Int64("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if attempts == nil {
		attempts = []*models.LoginAttempt{}
	}
	if len(attempts) > limit {
		attempts = attempts[:limit]
	}

	return attempts, nil
}
