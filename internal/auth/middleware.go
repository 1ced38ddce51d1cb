package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/awaybot/awaybot/internal/api"
)

type ownerClaimsKey struct{}

// Middleware admits only requests carrying a valid owner bearer token and
// stores the claims in the request context.
func Middleware(jwt *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := jwt.Validate(token)
			if err != nil {
				slog.Debug("rejected owner token", "error", err, "path", r.URL.Path)
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), ownerClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetOwnerClaims returns the claims stored by Middleware, or nil.
func GetOwnerClaims(ctx context.Context) *OwnerClaims {
	claims, _ := ctx.Value(ownerClaimsKey{}).(*OwnerClaims)
	return claims
}
