package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/http/response"
	"github.com/shopcore/shopcore-backend/internal/security"
	"github.com/shopcore/shopcore-backend/internal/service"
)

type contextKey string

const (
	claimsContextKey  contextKey = "claims"
	accountContextKey contextKey = "account"
)

// TokenVerifier is the capability the gate needs; the auth service
// satisfies it.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, raw string) (*domain.Account, *security.Claims, error)
}

// RequireAuth rejects requests without a valid, unrevoked access token and
// attaches the verified account and claims to the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			account, claims, err := verifier.VerifyAccess(r.Context(), raw)
			if err != nil {
				response.FromError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), account, claims)))
		})
	}
}

// OptionalAuth runs the same checks but proceeds anonymously on any
// failure, for endpoints that only personalize when a caller is known.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw != "" {
				if account, claims, err := verifier.VerifyAccess(r.Context(), raw); err == nil {
					r = r.WithContext(withIdentity(r.Context(), account, claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := AccountFromContext(r.Context())
			if !ok {
				response.FromError(w, r, service.ErrUnauthenticated)
				return
			}
			if account.Role != role {
				response.FromError(w, r, service.ErrInsufficientPermissions)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func withIdentity(ctx context.Context, account *domain.Account, claims *security.Claims) context.Context {
	ctx = context.WithValue(ctx, accountContextKey, account)
	return context.WithValue(ctx, claimsContextKey, claims)
}

func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	a, ok := ctx.Value(accountContextKey).(*domain.Account)
	return a, ok
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*security.Claims)
	return c, ok
}
