package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

type authUserCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":               true,
	"/api/v1/auth/login":    true,
	"/api/v1/auth/register": true,
}

// WSPath is the realtime endpoint. Browsers cannot set headers on a
// websocket handshake, so it also accepts the token as ?token=.
const WSPath = "/ws"

// Auth returns middleware that authenticates the bearer token and loads
// the account it names. Failures are answered with 401 and a JSON body
// carrying code "unauthorized" so clients can tell a refused handshake
// from a network error.
func Auth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "authorization required")
				return
			}
			u, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), authUserCtxKey{}, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		token := strings.TrimPrefix(h, "Bearer ")
		if token == h || token == "" {
			return "", false
		}
		return token, true
	}
	if r.URL.Path == WSPath {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, "unauthorized", msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// UserFromContext returns the authenticated user from the request context.
func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(authUserCtxKey{}).(*user.User)
	return u
}

// WithUser returns ctx carrying u as the authenticated user. Tests use it to
// bypass token handling.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, authUserCtxKey{}, u)
}
