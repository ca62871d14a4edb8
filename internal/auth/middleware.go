package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can read or overwrite the
// user id stored in a request context.
type contextKey string

const userIDKey contextKey = "userID"

// CookieName is the cookie the GitHub sign-in flow stores the token in.
const CookieName = "token"

var errNoToken = errors.New("auth: no token")

const unauthorizedBody = `{"error":"unauthorized","message":"Authentication credentials were not provided or are invalid."}`

// RequireAuth rejects requests without a valid token with 401 and stores
// the user id in the context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(unauthorizedBody))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth identifies the user when a valid token is present and lets
// the request through anonymously otherwise. Public reads use it so the
// per-user flags can be computed for signed-in readers.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's id, or (0, false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// extractUserID reads the token from the Authorization header ("Token x"
// or "Bearer x") and falls back to the token cookie.
func extractUserID(r *http.Request, tokens *TokenService) (int64, error) {
	token := tokenFromHeader(r.Header.Get("Authorization"))
	if token == "" {
		if cookie, err := r.Cookie(CookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return 0, errNoToken
	}

	return tokens.Validate(token)
}

func tokenFromHeader(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
