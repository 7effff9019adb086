package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerAuth guards every route except the health probe. The token is
// the locally generated one the CLI shares through the config backend.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if presented == r.Header.Get("Authorization") ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error",
					"missing or invalid API token; run the skinmatch CLI on the same machine as the server")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
