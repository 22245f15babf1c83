package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/identity"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionAuth authenticates requests against the session service and stores
// the resolved session in the request context. The Authorization bearer
// value is the console session token, never an upstream credential.
type SessionAuth struct {
	identity *identity.Service
}

// NewSessionAuth creates the session middleware.
func NewSessionAuth(svc *identity.Service) *SessionAuth {
	return &SessionAuth{identity: svc}
}

// Handler returns the middleware handler.
func (sa *SessionAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "missing session token")
			return
		}

		sess, err := sa.identity.Resolve(r.Context(), token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("session resolution failed")
			unauthorized(w, "invalid or expired session")
			return
		}
		sa.identity.Touch(r.Context(), sess)

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession retrieves the authenticated session from the request context.
func GetSession(ctx context.Context) *models.Session {
	if s, ok := ctx.Value(sessionKey).(*models.Session); ok {
		return s
	}
	return nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="voxdesk"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "authentication_failed",
		"message": message,
	})
}

// isPublicPath returns true for paths that should skip session auth.
func isPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
		"/version",
		"/metrics",
	}
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	// Sign-in, sign-up and password reset have no session yet. Sign-out is
	// authenticated so the session can be torn down.
	if strings.HasPrefix(path, "/api/v1/auth/") && path != "/api/v1/auth/signout" {
		return true
	}
	return false
}
