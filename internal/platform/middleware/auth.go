package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"gatepass/pkg/domain"
)

// Claims represents what the auth middleware extracts from a validated token.
type Claims struct {
	ActorID string
	Role    domain.Role
}

// TokenValidator validates an access token and returns its claims. Session
// issuance lives in an external identity service; this side only validates.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type contextKeyActorID struct{}
type contextKeyRole struct{}

// GetActorID retrieves the authenticated actor id from the context.
func GetActorID(ctx context.Context) string {
	v, ok := ctx.Value(contextKeyActorID{}).(string)
	if !ok {
		return ""
	}
	return v
}

// GetRole retrieves the authenticated role from the context.
func GetRole(ctx context.Context) domain.Role {
	v, ok := ctx.Value(contextKeyRole{}).(domain.Role)
	if !ok {
		return ""
	}
	return v
}

// RequireAuth validates the bearer token and stores claims in the context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, r, logger, "missing token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				unauthorized(w, r, logger, "invalid token")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, contextKeyActorID{}, claims.ActorID)
			ctx = context.WithValue(ctx, contextKeyRole{}, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only the listed roles past. It must run after RequireAuth.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[GetRole(r.Context())] {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, reason string) {
	logger.WarnContext(r.Context(), "unauthorized access",
		"reason", reason,
		"request_id", GetRequestID(r.Context()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
