package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_BlocksAfterLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/register", nil)
		req.RemoteAddr = "192.168.1.1:8080"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest("POST", "/register", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// A different address has its own budget
	req = httptest.NewRequest("POST", "/register", nil)
	req.RemoteAddr = "192.168.1.2:8080"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for second address, got %d", w.Code)
	}
}

func TestRateLimitByIP_UsesForwardedAddressFromTrustedProxy(t *testing.T) {
	ipConfig, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1, IPConfig: ipConfig})(okHandler())

	send := func(clientIP string) int {
		req := httptest.NewRequest("POST", "/register", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", clientIP)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("203.0.113.1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	// Same proxy, different client: not throttled
	if code := send("203.0.113.2"); code != http.StatusOK {
		t.Fatalf("expected 200 for distinct client, got %d", code)
	}
	if code := send("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}
