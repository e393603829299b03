// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ispnexus/webhook-service/pkg/api"
)

type Middleware struct {
	authService *Service
}

func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// AdminAuthMiddleware validates admin bearer tokens for management routes
func (m *Middleware) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			api.WriteUnauthorizedResponse(w, "missing authorization token")
			return
		}

		claims, err := m.authService.ValidateAdminToken(token)
		if err != nil {
			api.WriteUnauthorizedResponse(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), AdminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ServiceKeyMiddleware validates the API keys business services use to emit
// events. Keys arrive either as a bearer token or in X-API-Key.
func (m *Middleware) ServiceKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractBearer(r)
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if key == "" {
			api.WriteUnauthorizedResponse(w, "missing API key")
			return
		}

		if err := m.authService.ValidateServiceKey(key); err != nil {
			api.WriteUnauthorizedResponse(w, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetAdminClaims retrieves admin token claims from the request context
func GetAdminClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(AdminContextKey).(*Claims)
	return claims, ok
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
