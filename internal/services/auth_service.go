package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/ratelimit"
	"github.com/mpslytherin/accounts/internal/validation"
	pkglogger "github.com/mpslytherin/accounts/pkg/logger"
)

// AccountRepository defines the credential store operations used by the services
type AccountRepository interface {
	GetActiveByID(ctx context.Context, id int64) (*models.Account, error)
	GetActiveByUsername(ctx context.Context, username string) (*models.Account, error)
	UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	RecordSuccessfulLogin(ctx context.Context, id int64, at time.Time) error
	RecordFailedLogin(ctx context.Context, id int64, threshold int, lockUntil time.Time) (*models.LockoutState, error)
	UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.Account, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateAvatar(ctx context.Context, id int64, avatarURL *string) error
}

// PasswordHasher is satisfied by *pkgauth.BcryptHasher
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hashedPassword string) bool
	DummyVerify(password string)
}

// SessionIssuer is satisfied by *auth.SessionManager
type SessionIssuer interface {
	Issue(accountID int64) (string, time.Time, error)
}

// LoginRateLimiter is satisfied by *ratelimit.Limiter
type LoginRateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// LoginRecorder is satisfied by *HistoryService
type LoginRecorder interface {
	Record(ctx context.Context, accountID int64, success bool, ipAddress string)
}

// LockoutPolicy controls when repeated failures lock an account
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks for 15 minutes after 5 consecutive failures
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}

// AuthServiceDeps groups the collaborators of AuthService.
// Limiter, Avatars, Notifier and Timing are optional.
type AuthServiceDeps struct {
	Accounts    AccountRepository
	Hasher      PasswordHasher
	Sessions    SessionIssuer
	History     LoginRecorder
	Limiter     LoginRateLimiter
	Avatars     *AvatarService
	Notifier    LockoutNotifier
	Timing      *auth.TimingDelay
	Lockout     LockoutPolicy
	Logger      *slog.Logger
	AuditLogger *pkglogger.AuditLogger
}

// AuthService handles registration, login and logout
type AuthService struct {
	accounts    AccountRepository
	hasher      PasswordHasher
	sessions    SessionIssuer
	history     LoginRecorder
	limiter     LoginRateLimiter
	avatars     *AvatarService
	notifier    LockoutNotifier
	timing      *auth.TimingDelay
	lockout     LockoutPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	lockout := deps.Lockout
	if lockout.Threshold <= 0 || lockout.Duration <= 0 {
		lockout = DefaultLockoutPolicy
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	return &AuthService{
		accounts:    deps.Accounts,
		hasher:      deps.Hasher,
		sessions:    deps.Sessions,
		history:     deps.History,
		limiter:     deps.Limiter,
		avatars:     deps.Avatars,
		notifier:    notifier,
		timing:      deps.Timing,
		lockout:     lockout,
		logger:      deps.Logger,
		auditLogger: deps.AuditLogger,
		now:         time.Now,
	}
}

// LoginInput is the body of POST /login plus the resolved client address
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	ClientIP string `json:"-"`
}

// LoginResult carries the issued session
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// Login checks the rate limit, validates input, verifies credentials and
// issues a session. Once the account is located exactly one history row is
// written, whatever the outcome.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	start := time.Now()

	if err := s.checkRateLimit(ctx, in.ClientIP); err != nil {
		return nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetActiveByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.DummyVerify(in.Password)
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventLoginFailure,
				IPAddress:     in.ClientIP,
				FailureReason: "unknown_username",
			})
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()

	if account.IsLocked(now) {
		s.history.Record(ctx, account.ID, false, in.ClientIP)
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginLocked,
			AccountID:     account.ID,
			IPAddress:     in.ClientIP,
			FailureReason: "account_locked",
		})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrAccountLocked
	}

	if !s.hasher.Verify(in.Password, account.PasswordHash) {
		return nil, s.failLogin(ctx, account, in.ClientIP, now, start)
	}

	token, expiresAt, err := s.sessions.Issue(account.ID)
	if err != nil {
		s.logger.Error("failed to issue session", slog.Int64("account_id", account.ID), slog.Any("error", err))
		s.history.Record(ctx, account.ID, false, in.ClientIP)
		return nil, models.ErrInternalServer
	}

	if err := s.accounts.RecordSuccessfulLogin(ctx, account.ID, now); err != nil {
		s.logger.Error("failed to reset login counters", slog.Int64("account_id", account.ID), slog.Any("error", err))
		s.history.Record(ctx, account.ID, false, in.ClientIP)
		return nil, models.ErrInternalServer
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastAccessAt = &now

	s.history.Record(ctx, account.ID, true, in.ClientIP)
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginSuccess,
		AccountID: account.ID,
		IPAddress: in.ClientIP,
		Success:   true,
	})
	s.timing.WaitFrom(start, true)

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

func (s *AuthService) checkRateLimit(ctx context.Context, clientIP string) error {
	if s.limiter == nil {
		return nil
	}

	decision, err := s.limiter.Allow(ctx, clientIP)
	if err != nil {
		// Fail open: the lockout counter still bounds guessing per account
		s.logger.Error("login rate limiter unavailable", slog.Any("error", err))
		return nil
	}
	if decision.Allowed {
		return nil
	}

	s.logger.Warn("login rate limit exceeded", slog.String("ip_address", clientIP))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLoginThrottled,
		IPAddress:     clientIP,
		FailureReason: "rate_limited",
	})
	return &models.RateLimitError{RetryAfter: decision.RetryAfter}
}

// failLogin handles a password mismatch on an unlocked account.
func (s *AuthService) failLogin(ctx context.Context, account *models.Account, clientIP string, now, start time.Time) error {
	defer s.timing.WaitFrom(start, false)
	defer s.history.Record(ctx, account.ID, false, clientIP)

	state, err := s.accounts.RecordFailedLogin(ctx, account.ID, s.lockout.Threshold, now.Add(s.lockout.Duration))
	if err != nil {
		s.logger.Error("failed to record failed login", slog.Int64("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLoginFailure,
		AccountID:     account.ID,
		IPAddress:     clientIP,
		FailureReason: "invalid_password",
	})

	if state.FailedAttempts >= s.lockout.Threshold && state.LockedUntil != nil {
		s.logger.Warn("account locked after repeated failures",
			slog.Int64("account_id", account.ID),
			slog.Int("failed_attempts", state.FailedAttempts),
			slog.Time("locked_until", *state.LockedUntil))
		s.auditLogger.LogAccountAction(ctx, pkglogger.EventAccountLocked, account.ID, clientIP, map[string]string{
			"locked_until": state.LockedUntil.UTC().Format(time.RFC3339),
		})
		s.notifyLockout(account, *state.LockedUntil)
	}

	return models.ErrInvalidCredentials
}

const notifyTimeout = 10 * time.Second

func (s *AuthService) notifyLockout(account *models.Account, until time.Time) {
	acct := *account
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyLockout(ctx, &acct, until); err != nil {
			s.logger.Warn("failed to send lockout notification",
				slog.Int64("account_id", acct.ID),
				slog.Any("error", err))
		}
	}()
}

// RegisterInput is the body of POST /register
type RegisterInput struct {
	Username     string `json:"username" validate:"required,min=3,max=30,username"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Password     string `json:"password" validate:"required,min=6,max=72,password"`
	AvatarBase64 string `json:"avatarBase64"`
	ClientIP     string `json:"-"`
}

// Register creates an active account. Username collisions are reported
// before email collisions.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = validation.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	taken, err := s.accounts.UsernameTaken(ctx, in.Username, 0)
	if err != nil {
		s.logger.Error("failed to check username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if taken {
		return nil, models.ErrUsernameTaken
	}

	taken, err = s.accounts.EmailTaken(ctx, in.Email, 0)
	if err != nil {
		s.logger.Error("failed to check email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if taken {
		return nil, models.ErrEmailTaken
	}

	var avatarURL *string
	if strings.TrimSpace(in.AvatarBase64) != "" {
		url, err := s.storeAvatar(ctx, in.AvatarBase64)
		if err != nil {
			return nil, err
		}
		avatarURL = &url
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		s.discardAvatar(ctx, avatarURL)
		return nil, models.ErrInternalServer
	}

	created, err := s.accounts.Create(ctx, &models.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		AvatarURL:    avatarURL,
		Active:       true,
	})
	if err != nil {
		s.discardAvatar(ctx, avatarURL)
		if errors.Is(err, models.ErrConflict) {
			// Lost a race with a concurrent registration
			return nil, err
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventRegistered, created.ID, in.ClientIP, map[string]string{
		"username": created.Username,
		"email":    pkglogger.SanitizedEmail(created.Email),
	})

	return created, nil
}

func (s *AuthService) storeAvatar(ctx context.Context, encoded string) (string, error) {
	if s.avatars == nil {
		return "", fmt.Errorf("%w: avatar uploads are disabled", models.ErrBadRequest)
	}

	data, err := DecodeAvatarBase64(encoded)
	if err != nil {
		return "", err
	}
	return s.avatars.Save(ctx, data)
}

func (s *AuthService) discardAvatar(ctx context.Context, avatarURL *string) {
	if avatarURL != nil && s.avatars != nil {
		s.avatars.Remove(ctx, *avatarURL)
	}
}

// Logout records the end of a session. The cookie itself is cleared by the handler.
func (s *AuthService) Logout(ctx context.Context, accountID int64, clientIP string) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		AccountID: accountID,
		IPAddress: clientIP,
		Success:   true,
	})
}
