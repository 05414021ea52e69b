package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/services"
	"github.com/mpslytherin/accounts/internal/storage"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

// ProfileServiceInterface defines the interface for profile operations
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, accountID int64) (*models.Account, error)
	UpdateProfile(ctx context.Context, accountID int64, in services.ProfileUpdateInput) (*models.Account, error)
	ChangePassword(ctx context.Context, accountID int64, in services.ChangePasswordInput) error
	UploadAvatar(ctx context.Context, accountID int64, data []byte, clientIP string) (string, error)
	OpenAvatar(ctx context.Context, key string) (*storage.DownloadResult, error)
}

// HistoryServiceInterface defines the interface for login history queries
type HistoryServiceInterface interface {
	Query(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error)
}

// ProfileHandler serves the signed-in account's profile, history and avatar
type ProfileHandler struct {
	profiles       ProfileServiceInterface
	history        HistoryServiceInterface
	ipConfig       *pkghttp.IPConfig
	maxAvatarBytes int64
	logger         *slog.Logger
}

func NewProfileHandler(
	profiles ProfileServiceInterface,
	history HistoryServiceInterface,
	ipConfig *pkghttp.IPConfig,
	maxAvatarBytes int64,
	logger *slog.Logger,
) *ProfileHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = services.DefaultAvatarMaxBytes
	}
	return &ProfileHandler{
		profiles:       profiles,
		history:        history,
		ipConfig:       ipConfig,
		maxAvatarBytes: maxAvatarBytes,
		logger:         logger,
	}
}

// ProfileDTO is the public view of an account
type ProfileDTO struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FullName   *string    `json:"fullName"`
	AvatarURL  *string    `json:"avatarUrl"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastAccess *time.Time `json:"lastAccess"`
}

// HistoryItemDTO is one login attempt
type HistoryItemDTO struct {
	LoginTime time.Time `json:"login_time"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ip_address"`
}

type ProfileResponse struct {
	Success bool             `json:"success"`
	Profile ProfileDTO       `json:"profile"`
	History []HistoryItemDTO `json:"history"`
}

type HistoryResponse struct {
	Success bool             `json:"success"`
	History []HistoryItemDTO `json:"history"`
}

type UpdateProfileResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Profile ProfileDTO `json:"profile"`
}

type AvatarResponse struct {
	Success   bool   `json:"success"`
	AvatarURL string `json:"avatarUrl"`
}

// UploadAvatarRequest is the JSON form of POST /api/upload-avatar
type UploadAvatarRequest struct {
	AvatarBase64 string `json:"avatarBase64"`
}

func toProfileDTO(a *models.Account) ProfileDTO {
	return ProfileDTO{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		FullName:   a.FullName,
		AvatarURL:  a.AvatarURL,
		CreatedAt:  a.CreatedAt,
		LastAccess: a.LastAccessAt,
	}
}

func toHistoryDTOs(attempts []*models.LoginAttempt) []HistoryItemDTO {
	out := make([]HistoryItemDTO, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, HistoryItemDTO{
			LoginTime: a.LoginTime,
			Success:   a.Success,
			IPAddress: a.IPAddress,
		})
	}
	return out
}

// GetProfile handles GET /profile
// @Summary Current account with its 10 most recent logins
// @Produce json
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /profile [get]
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	account, err := h.profiles.GetProfile(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	history, err := h.history.Query(r.Context(), accountID, services.DefaultHistoryLimit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ProfileResponse{
		Success: true,
		Profile: toProfileDTO(account),
		History: toHistoryDTOs(history),
	})
}

// LoginHistory handles GET /api/login-history?limit=N
// @Summary Recent login attempts, newest first
// @Param limit query int false "Rows to return (default 10, max 100)"
// @Produce json
// @Success 200 {object} HistoryResponse
// @Router /api/login-history [get]
func (h *ProfileHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			pkghttp.WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	history, err := h.history.Query(r.Context(), accountID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, HistoryResponse{
		Success: true,
		History: toHistoryDTOs(history),
	})
}

// UpdateProfile handles PUT /api/profile
// @Summary Change username, email or full name
// @Accept json
// @Param request body services.ProfileUpdateInput true "Fields to change"
// @Produce json
// @Success 200 {object} UpdateProfileResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /api/profile [put]
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req services.ProfileUpdateInput
	if !decodeBody(w, r, maxJSONBodyBytes, &req) {
		return
	}
	req.ClientIP = pkghttp.ExtractClientIP(r, h.ipConfig)

	account, err := h.profiles.UpdateProfile(r.Context(), accountID, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UpdateProfileResponse{
		Success: true,
		Message: "Profile updated",
		Profile: toProfileDTO(account),
	})
}

// ChangePassword handles POST /api/change-password
// @Summary Replace the password
// @Accept json
// @Param request body services.ChangePasswordInput true "Current and new password"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /api/change-password [post]
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req services.ChangePasswordInput
	if !decodeBody(w, r, maxJSONBodyBytes, &req) {
		return
	}
	req.ClientIP = pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.profiles.ChangePassword(r.Context(), accountID, req); err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			// The caller is already signed in; a 401 here would read as a lost session
			pkghttp.WriteBadRequest(w, "Current password is incorrect")
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password changed",
	})
}

// UploadAvatar handles POST /api/upload-avatar. Accepts either a JSON body
// with avatarBase64 or a multipart form with an "avatar" file field.
// @Summary Replace the avatar image
// @Produce json
// @Success 200 {object} AvatarResponse
// @Failure 413 {object} pkghttp.ErrorResponse
// @Failure 415 {object} pkghttp.ErrorResponse
// @Router /api/upload-avatar [post]
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, avatarBodyLimit(h.maxAvatarBytes))

	data, err := h.readAvatar(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WritePayloadTooLarge(w, "Avatar image is too large")
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	avatarURL, err := h.profiles.UploadAvatar(r.Context(), accountID, data, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AvatarResponse{
		Success:   true,
		AvatarURL: avatarURL,
	})
}

func (h *ProfileHandler) readAvatar(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxAvatarBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, models.ErrBadRequest
		}
		file, _, err := r.FormFile("avatar")
		if err != nil {
			return nil, fmt.Errorf("%w: missing avatar file", models.ErrBadRequest)
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, h.maxAvatarBytes+1))
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	var req UploadAvatarRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, msgInvalidBody)
	}
	if req.AvatarBase64 == "" {
		return nil, fmt.Errorf("%w: avatarBase64 is required", models.ErrBadRequest)
	}
	return services.DecodeAvatarBase64(req.AvatarBase64)
}

// ServeAvatar handles GET /avatars/{key}
func (h *ProfileHandler) ServeAvatar(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	res, err := h.profiles.OpenAvatar(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer res.Reader.Close()

	w.Header().Set("Content-Type", res.ContentType)
	if res.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, res.Reader); err != nil {
		h.logger.Warn("failed to stream avatar", slog.String("key", key), slog.Any("error", err))
	}
}
