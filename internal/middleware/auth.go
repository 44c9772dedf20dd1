package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"scribex-api/internal/model"
	"scribex-api/pkg/apierror"
)

type principalResolver interface {
	Principal(ctx context.Context, accessToken string) (*model.Principal, error)
}

type contextKey string

const (
	principalContextKey   contextKey = "principal"
	accessTokenContextKey contextKey = "access_token"
)

type AuthMiddleware struct {
	resolver principalResolver
}

func NewAuthMiddleware(resolver principalResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			writeUnauthenticated(w)
			return
		}

		principal, err := m.resolver.Principal(r.Context(), token)
		if err != nil {
			var apiErr *apierror.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusUnauthorized {
				writeUnauthenticated(w)
				return
			}
			slog.Error("resolve principal", "error", err)
			writeErrorBody(w, http.StatusInternalServerError, apierror.CodeInternal, "unexpected server error")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		ctx = context.WithValue(ctx, accessTokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...model.Role) func(http.Handler) http.Handler {
	roleSet := map[model.Role]struct{}{}
	for _, role := range allowedRoles {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeUnauthenticated(w)
				return
			}

			if _, exists := roleSet[principal.Role]; !exists {
				writeErrorBody(w, http.StatusForbidden, apierror.CodeForbidden, "not enough permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}

	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*model.Principal)
	return principal, ok && principal != nil
}

func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenContextKey).(string)
	return token, ok && token != ""
}

// WithPrincipal attaches an authenticated caller to ctx.
func WithPrincipal(ctx context.Context, principal *model.Principal, accessToken string) context.Context {
	ctx = context.WithValue(ctx, principalContextKey, principal)
	return context.WithValue(ctx, accessTokenContextKey, accessToken)
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeErrorBody(w, http.StatusUnauthorized, apierror.CodeUnauthenticated, apierror.CredentialsMessage)
}
