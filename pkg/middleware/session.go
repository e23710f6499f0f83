package middleware

import (
	"net/http"
	"strings"

	apperrors "waitgate/pkg/errors"
	"waitgate/pkg/logger"
	"waitgate/pkg/session"
)

const bearerPrefix = "Bearer "

// Session attaches the caller's session when the request carries a valid
// bearer token. Requests without a token pass through anonymously; a
// malformed or expired token is rejected.
func Session(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !strings.HasPrefix(header, bearerPrefix) {
				writeError(w, log, apperrors.Unauthorized("Authorization header must use the Bearer scheme"))
				return
			}

			s, err := session.ParseToken(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)), secret)
			if err != nil {
				log.Warn("Rejected session token",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				writeError(w, log, apperrors.Unauthorized("Invalid or expired session"))
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireSession rejects requests that reach it without a session.
func RequireSession(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := session.FromContext(r.Context()); !ok {
				writeError(w, log, apperrors.Unauthorized("An active session is required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
