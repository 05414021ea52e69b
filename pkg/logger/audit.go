package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLoginLocked    = "login_locked"
	EventLoginThrottled = "login_rate_limited"
	EventAccountLocked  = "account_locked"
	EventRegistered     = "account_registered"
	EventLogout         = "logout"
	EventProfileUpdated = "profile_updated"
	EventPasswordChange = "password_changed"
	EventAvatarUpdated  = "avatar_updated"
)

// AuditEvent is a security-relevant action on an account
type AuditEvent struct {
	EventType     string
	AccountID     int64 // zero when no account was resolved
	Username      string
	IPAddress     string
	Success       bool
	FailureReason string
}

// AuditLogger writes audit records through the application logger
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs login outcomes. Failures are logged at warn level.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != 0 {
		attrs = append(attrs, slog.Int64("account_id", event.AccountID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAccountAction logs a change made to an account
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType string, accountID int64, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.Int64("account_id", accountID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
