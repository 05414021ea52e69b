package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/services"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

// AuthServiceInterface defines the interface for login and registration
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Register(ctx context.Context, in services.RegisterInput) (*models.Account, error)
	Logout(ctx context.Context, accountID int64, clientIP string)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service       AuthServiceInterface
	sessions      auth.SessionValidator
	cookies       auth.CookieConfig
	ipConfig      *pkghttp.IPConfig
	registerLimit int64
	logger        *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	service AuthServiceInterface,
	sessions auth.SessionValidator,
	cookies auth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	maxAvatarBytes int64,
	logger *slog.Logger,
) *AuthHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = services.DefaultAvatarMaxBytes
	}
	return &AuthHandler{
		service:       service,
		sessions:      sessions,
		cookies:       cookies,
		ipConfig:      ipConfig,
		registerLimit: avatarBodyLimit(maxAvatarBytes),
		logger:        logger,
	}
}

// MessageResponse is the body of successful mutations
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login handles POST /login
// @Summary Sign in
// @Accept json
// @Param request body services.LoginInput true "Credentials"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if !decodeBody(w, r, maxJSONBodyBytes, &req) {
		return
	}
	req.ClientIP = pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, result.ExpiresAt, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Login successful",
	})
}

// Register handles POST /register
// @Summary Create an account
// @Accept json
// @Param request body services.RegisterInput true "New account"
// @Produce json
// @Success 201 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Failure 413 {object} pkghttp.ErrorResponse
// @Router /register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	// The body may carry an inline avatar, so it is capped at the avatar size
	var req services.RegisterInput
	if !decodeBody(w, r, h.registerLimit, &req) {
		return
	}
	req.ClientIP = pkghttp.ExtractClientIP(r, h.ipConfig)

	if _, err := h.service.Register(r.Context(), req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, MessageResponse{
		Success: true,
		Message: "Registration successful",
	})
}

// Logout handles POST /logout. The cookie is always cleared; the event is
// audited only when the cookie carried a valid session.
// @Summary Sign out
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := auth.GetSessionCookie(r, h.cookies); err == nil {
		if claims, err := h.sessions.Validate(token); err == nil {
			if accountID, err := claims.AccountID(); err == nil {
				h.service.Logout(r.Context(), accountID, pkghttp.ExtractClientIP(r, h.ipConfig))
			}
		}
	}

	auth.ClearSessionCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Logged out",
	})
}
