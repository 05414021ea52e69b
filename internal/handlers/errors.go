package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/validation"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

const (
	msgInvalidCredentials = "Invalid username or password"
	msgRateLimited        = "Too many login attempts. Please try again in 15 minutes."
	msgInternal           = "Internal server error"
	msgInvalidBody        = "Invalid request body"
	msgBodyTooLarge       = "Request body is too large"
)

// maxJSONBodyBytes caps bodies that carry only short text fields
const maxJSONBodyBytes int64 = 16 << 10

// avatarBodyLimit is the largest body that can carry a maxAvatarBytes image:
// base64 inflates by 4/3, plus headroom for JSON or multipart framing.
func avatarBodyLimit(maxAvatarBytes int64) int64 {
	return maxAvatarBytes*4/3 + 64<<10
}

// decodeBody caps the request body at limit and decodes it into dst. On
// failure it writes 413 or 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := pkghttp.DecodeJSON(r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WritePayloadTooLarge(w, msgBodyTooLarge)
			return false
		}
		pkghttp.WriteBadRequest(w, msgInvalidBody)
		return false
	}
	return true
}

// writeServiceError maps a service error onto the JSON error envelope.
// Unknown errors are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *validation.Error
	var rlErr *models.RateLimitError

	switch {
	case errors.As(err, &verr):
		fields := make([]pkghttp.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, pkghttp.FieldError{Field: f.Field, Message: f.Message})
		}
		pkghttp.WriteValidationError(w, verr.First(), fields)
	case errors.As(err, &rlErr):
		pkghttp.WriteTooManyRequests(w, msgRateLimited, rlErr.RetryAfter)
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, msgRateLimited, 0)
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrAccountLocked):
		// One message for every credential failure so usernames cannot be probed
		pkghttp.WriteUnauthorized(w, msgInvalidCredentials)
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrUsernameTaken):
		pkghttp.WriteConflict(w, "username is already taken")
	case errors.Is(err, models.ErrEmailTaken):
		pkghttp.WriteConflict(w, "email is already registered")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrPayloadTooLarge):
		pkghttp.WritePayloadTooLarge(w, "Avatar image is too large")
	case errors.Is(err, models.ErrUnsupportedMedia):
		pkghttp.WriteUnsupportedMediaType(w, "Avatar must be a PNG, JPEG, GIF or WebP image")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, badRequestMessage(err))
	default:
		if !errors.Is(err, models.ErrInternalServer) {
			logger.Error("unhandled service error", slog.Any("error", err))
		}
		pkghttp.WriteInternalError(w, msgInternal)
	}
}

// badRequestMessage exposes the detail wrapped around ErrBadRequest.
func badRequestMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": ")
	if msg == models.ErrBadRequest.Error() {
		return "Bad request"
	}
	return msg
}
