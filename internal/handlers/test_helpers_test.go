package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/services"
	"github.com/mpslytherin/accounts/internal/storage"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAccount marks the request as authenticated for accountID
func WithAccount(req *http.Request, accountID int64) *http.Request {
	return req.WithContext(auth.WithAccountID(req.Context(), accountID))
}

// DiscardLogger drops all output
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	RegisterFunc func(ctx context.Context, in services.RegisterInput) (*models.Account, error)
	LogoutCalls  []int64
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.Account, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Logout(ctx context.Context, accountID int64, clientIP string) {
	m.LogoutCalls = append(m.LogoutCalls, accountID)
}

// MockSessionValidator implements auth.SessionValidator for testing
type MockSessionValidator struct {
	ValidateFunc func(token string) (*models.SessionClaims, error)
}

func (m *MockSessionValidator) Validate(token string) (*models.SessionClaims, error) {
	if m.ValidateFunc == nil {
		return nil, models.ErrInvalidSession
	}
	return m.ValidateFunc(token)
}

// MockProfileService implements ProfileServiceInterface for testing
type MockProfileService struct {
	GetProfileFunc     func(ctx context.Context, accountID int64) (*models.Account, error)
	UpdateProfileFunc  func(ctx context.Context, accountID int64, in services.ProfileUpdateInput) (*models.Account, error)
	ChangePasswordFunc func(ctx context.Context, accountID int64, in services.ChangePasswordInput) error
	UploadAvatarFunc   func(ctx context.Context, accountID int64, data []byte, clientIP string) (string, error)
	OpenAvatarFunc     func(ctx context.Context, key string) (*storage.DownloadResult, error)
}

func (m *MockProfileService) GetProfile(ctx context.Context, accountID int64) (*models.Account, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, accountID)
}

func (m *MockProfileService) UpdateProfile(ctx context.Context, accountID int64, in services.ProfileUpdateInput) (*models.Account, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, accountID, in)
}

func (m *MockProfileService) ChangePassword(ctx context.Context, accountID int64, in services.ChangePasswordInput) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, accountID, in)
}

func (m *MockProfileService) UploadAvatar(ctx context.Context, accountID int64, data []byte, clientIP string) (string, error) {
	if m.UploadAvatarFunc == nil {
		return "", models.ErrInternalServer
	}
	return m.UploadAvatarFunc(ctx, accountID, data, clientIP)
}

func (m *MockProfileService) OpenAvatar(ctx context.Context, key string) (*storage.DownloadResult, error) {
	if m.OpenAvatarFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.OpenAvatarFunc(ctx, key)
}

// MockHistoryService implements HistoryServiceInterface for testing
type MockHistoryService struct {
	QueryFunc func(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error)
}

func (m *MockHistoryService) Query(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error) {
	if m.QueryFunc == nil {
		return []*models.LoginAttempt{}, nil
	}
	return m.QueryFunc(ctx, accountID, limit)
}

// MockSchemaInspector implements SchemaInspector for testing
type MockSchemaInspector struct {
	PingFunc           func(ctx context.Context) error
	DescribeSchemaFunc func(ctx context.Context) ([]models.TableInfo, error)
}

func (m *MockSchemaInspector) Ping(ctx context.Context) error {
	if m.PingFunc == nil {
		return nil
	}
	return m.PingFunc(ctx)
}

func (m *MockSchemaInspector) DescribeSchema(ctx context.Context) ([]models.TableInfo, error) {
	if m.DescribeSchemaFunc == nil {
		return nil, nil
	}
	return m.DescribeSchemaFunc(ctx)
}
