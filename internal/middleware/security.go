package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// SecurityOptions configures CORS, response hardening headers and transport
// enforcement.
type SecurityOptions struct {
	// AllowedOrigins lists origins echoed in Access-Control-Allow-Origin. "*"
	// allows any origin.
	AllowedOrigins []string
	// Headers are set on every response.
	Headers map[string]string
	// RequireHTTPS rejects plain HTTP requests with 403 unless a proxy reports
	// X-Forwarded-Proto: https.
	RequireHTTPS bool
}

// Security applies response headers, answers CORS preflights with 204 and
// enforces HTTPS when configured.
func Security(opts SecurityOptions) func(http.Handler) http.Handler {
	wildcard := len(opts.AllowedOrigins) == 0 || slices.Contains(opts.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range opts.Headers {
				h.Set(k, v)
			}

			h.Set("Access-Control-Allow-Origin", allowOrigin(r.Header.Get("Origin"), opts.AllowedOrigins, wildcard))
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if opts.RequireHTTPS && !secure(r) {
				WriteError(w, http.StatusForbidden, ErrorDetail{Message: "HTTPS required"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin echoes an allowed origin; disallowed origins receive the first
// configured one so browsers reject the response.
func allowOrigin(origin string, allowed []string, wildcard bool) string {
	if wildcard {
		return "*"
	}
	if slices.Contains(allowed, origin) {
		return origin
	}
	return allowed[0]
}

func secure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
