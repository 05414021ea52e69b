package middleware

import "net/http"

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	Env string
}

// SecurityHeaders sets response headers for a JSON API that also serves
// avatar images. Nothing here is meant to be framed or to run scripts.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	production := config.Env == "production"

	csp := "default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	if !production {
		// Allow local tooling (API explorers, dev frontends) to load images from anywhere
		csp = "default-src 'none'; img-src 'self' data: http: https:; frame-ancestors 'none'"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", csp)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			// Avatars may be embedded by a frontend on a sibling subdomain
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			h.Set("Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=(), usb=()")

			// Session cookies and credentials must never be cached by intermediaries
			if r.Method != http.MethodGet || !isAvatarPath(r.URL.Path) {
				h.Set("Cache-Control", "no-store")
			}

			if production && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAvatarPath(path string) bool {
	const prefix = "/avatars/"
	return len(path) > len(prefix) && path[:len(prefix)] == prefix
}
