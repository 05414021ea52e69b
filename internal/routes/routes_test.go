package routes

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/handlers"
	"github.com/mpslytherin/accounts/internal/ratelimit"
	"github.com/mpslytherin/accounts/internal/services"
	"github.com/mpslytherin/accounts/internal/storage"
	pkglogger "github.com/mpslytherin/accounts/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (chi.Router, *auth.SessionManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := pkglogger.NewAuditLogger(logger)
	sessions := auth.NewSessionManager("routes-test-secret-0123456789abcdef", time.Hour)
	cookies := auth.CookieConfig{Name: "session"}

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	avatars := services.NewAvatarService(store, 1024, logger)

	// The services are never reached by these tests; they only need to exist
	authSvc := services.NewAuthService(services.AuthServiceDeps{
		Sessions:    sessions,
		Limiter:     ratelimit.NewLimiter(ratelimit.NewMemoryStore(time.Minute, 10), time.Minute, "login:"),
		Avatars:     avatars,
		Logger:      logger,
		AuditLogger: audit,
	})
	profileSvc := services.NewProfileService(nil, nil, avatars, logger, audit)

	router := chi.NewRouter()
	RegisterRoutes(router, Handlers{
		Auth:        handlers.NewAuthHandler(authSvc, sessions, cookies, nil, 1024, logger),
		Profile:     handlers.NewProfileHandler(profileSvc, services.NewHistoryService(nil, logger), nil, 1024, logger),
		Diagnostics: handlers.NewDiagnosticsHandler(nil, logger),
	}, Options{
		Sessions:          sessions,
		Cookies:           cookies,
		RegisterPerMinute: 5,
		UploadPerMinute:   5,
	})
	return router, sessions
}

func TestRoutes_ProtectedRequireSession(t *testing.T) {
	router, _ := newTestRouter(t)

	protected := []struct{ method, path string }{
		{"GET", "/profile"},
		{"GET", "/api/login-history"},
		{"PUT", "/api/profile"},
		{"POST", "/api/change-password"},
		{"POST", "/api/upload-avatar"},
	}

	for _, p := range protected {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "Authentication required")
		})
	}
}

func TestRoutes_TamperedCookieRejected(t *testing.T) {
	router, sessions := newTestRouter(t)
	token, _, err := sessions.Issue(1)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token + "x"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired session")
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/logout", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/login", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/avatars/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_RegisterIsThrottled(t *testing.T) {
	router, _ := newTestRouter(t)

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", "/register", strings.NewReader("{"))
		req.RemoteAddr = "198.51.100.20:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
