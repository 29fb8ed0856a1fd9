package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const bearerPrefix = "bearer "

// Middleware validates the Bearer token on every request and stores the
// caller in the request context. Paths in public pass through without one.
func Middleware(tokens *TokenProvider, public map[string]bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearer(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
			return
		}

		caller, err := tokens.Verify(token)
		if err != nil {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected bearer token")
			http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// ExtractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func ExtractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
