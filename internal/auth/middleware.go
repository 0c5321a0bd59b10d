package auth

import (
	"context"
	"fmt"
	"net/http"
)

type contextKey string

const claimsKey contextKey = "claims"

func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !claims.HasRole(role) {
				http.Error(w, "forbidden: requires role "+role, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if claims := ClaimsFrom(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

func HasRole(ctx context.Context, role string) bool {
	claims := ClaimsFrom(ctx)
	return claims != nil && claims.HasRole(role)
}

// CanAccess reports whether the caller owns the resource or holds adminRole.
func CanAccess(ctx context.Context, ownerID, adminRole string) bool {
	claims := ClaimsFrom(ctx)
	if claims == nil {
		return false
	}
	return (ownerID != "" && claims.Subject == ownerID) || claims.HasRole(adminRole)
}
