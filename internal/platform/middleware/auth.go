package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*PrincipalClaims, error)
}

// PrincipalClaims represents the claims we expect from the token validator.
// Address is the caller's ledger address; Admin marks the fixed admin
// principal allowed to verify or reject providers.
type PrincipalClaims struct {
	Address string
	Admin   bool
}

type contextKeyAddress struct{}
type contextKeyAdmin struct{}

var (
	ctxKeyAddress = contextKeyAddress{}
	ctxKeyAdmin   = contextKeyAdmin{}
)

// GetCallerAddress retrieves the authenticated principal address from the context.
func GetCallerAddress(ctx context.Context) string {
	addr, ok := ctx.Value(ctxKeyAddress).(string)
	if !ok {
		return ""
	}
	return addr
}

// IsAdmin reports whether the authenticated principal is the admin.
func IsAdmin(ctx context.Context) bool {
	admin, ok := ctx.Value(ctxKeyAdmin).(bool)
	return ok && admin
}

// WithPrincipal injects principal claims into the context. Exported for tests
// that exercise handlers without the full middleware chain.
func WithPrincipal(ctx context.Context, claims PrincipalClaims) context.Context {
	ctx = context.WithValue(ctx, ctxKeyAddress, claims.Address)
	return context.WithValue(ctx, ctxKeyAdmin, claims.Admin)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's principal claims in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
