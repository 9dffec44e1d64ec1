package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// CredentialFromRequest retrieves the handshake credential. Regular
// HTTP callers use the standard "Bearer <token>" header; browser
// WebSocket clients cannot set headers during the upgrade, so a
// "token" query parameter is accepted as well.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware validates the JWT on incoming HTTP calls and injects the
// resolved user id into the request context for downstream handlers.
func Middleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := CredentialFromRequest(r)
			if credential == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.Validate(credential)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user id placed in the
// context by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}
