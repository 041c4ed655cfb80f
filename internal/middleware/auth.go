package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"storefront-auth/internal/model"
	"storefront-auth/internal/service"
)

type sessionVerifier interface {
	VerifyAccessToken(tokenString string) (string, error)
	ResolveIdentity(ctx context.Context, subjectID string) (model.AuthUser, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	verifier sessionVerifier
}

func NewAuthMiddleware(verifier sessionVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth extracts the access token from its cookie, verifies it and
// attaches the resolved identity to the request context. An expired token
// answers with the TOKEN_EXPIRED code so clients know a refresh is worth
// attempting; an invalid one gets the generic UNAUTHORIZED.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(service.AccessCookieName)
		if err != nil || cookie.Value == "" {
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no access token provided")
			return
		}

		subjectID, err := m.verifier.VerifyAccessToken(cookie.Value)
		if errors.Is(err, model.ErrTokenExpired) {
			writeGuardError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired")
			return
		}
		if err != nil {
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
			return
		}

		identity, err := m.verifier.ResolveIdentity(r.Context(), subjectID)
		if errors.Is(err, model.ErrUserNotFound) {
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown subject")
			return
		}
		if err != nil {
			writeGuardError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "identity lookup failed")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin assumes RequireAuth already ran; it is a pure role check.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		if identity.Role != model.RoleAdmin {
			writeGuardError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func IdentityFromContext(ctx context.Context) (model.AuthUser, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.AuthUser)
	return identity, ok
}

func writeGuardError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
