package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveWithHeaders(env string, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	SecurityHeaders(SecurityHeadersConfig{Env: env})(okHandler()).ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Production(t *testing.T) {
	req := httptest.NewRequest("POST", "/login", nil)
	req.TLS = &tls.ConnectionState{}
	w := serveWithHeaders("production", req)

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
		{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	}

	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.expected {
			t.Errorf("Header %s: got %q, want %q", tt.header, got, tt.expected)
		}
	}

	if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("CSP should deny by default: %s", csp)
	}
}

func TestSecurityHeaders_Development(t *testing.T) {
	w := serveWithHeaders("development", httptest.NewRequest("GET", "/profile", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q, want DENY", got)
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS should not be sent outside production, got %q", got)
	}
	if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "data:") {
		t.Errorf("CSP should allow data: images in development: %s", csp)
	}
}

func TestSecurityHeaders_AvatarsAreCacheable(t *testing.T) {
	w := serveWithHeaders("production", httptest.NewRequest("GET", "/avatars/abc.png", nil))

	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control: got %q, want unset so the handler can choose", got)
	}
}
