package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/micromaend/bidding-service/internal/domain/bids"
)

type contextKey string

const (
	tokenHeader              = "Authorization"
	tokenPrefix              = "Bearer "
	principalKey  contextKey = "principal"
)

// Middleware validates the bearer token and injects the resulting principal
// into the request context. Requests without a valid token are rejected
// before reaching any handler.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get(tokenHeader)
			if !strings.HasPrefix(authHeader, tokenPrefix) {
				http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.ValidateToken(strings.TrimPrefix(authHeader, tokenPrefix))
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			principal, err := claims.Principal()
			if err != nil {
				http.Error(w, "invalid token subject", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext retrieves the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (bids.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(bids.Principal)
	return principal, ok
}
