package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// AdminTokenHeader carries the dashboard auth token
const AdminTokenHeader = "X-Chatbot-Token"

// AdminAuth rejects requests that do not carry the configured admin
// token. The token may arrive in the header or, for socket upgrades
// where headers cannot be set from the browser, in the token query
// parameter.
func AdminAuth(token string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := r.Header.Get(AdminTokenHeader)
			if supplied == "" {
				supplied = r.URL.Query().Get("token")
			}

			if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				log.Warn("Rejected admin request with bad token",
					logger.String("path", r.URL.Path),
					logger.String("remote_addr", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
