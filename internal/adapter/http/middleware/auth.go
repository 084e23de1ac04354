package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/auth"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
)

// Headers read by HeaderIdentity.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

type principalKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Authenticate requires a valid bearer token and stores its principal in the
// request context.
func Authenticate(verifier TokenVerifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, reason, message string) {
		if m != nil {
			m.AuthFailures.WithLabelValues(reason).Inc()
		}
		writeError(w, http.StatusUnauthorized, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				reject(w, "missing", "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				reject(w, "malformed", "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				if errors.Is(err, domain.ErrExpiredToken) {
					reject(w, "expired", "token has expired")
					return
				}
				reject(w, "invalid", "invalid token")
				return
			}

			p := &Principal{UserID: claims.UserID(), Email: claims.Email, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// HeaderIdentity trusts X-User-ID and X-User-Role. It stands in for
// Authenticate when authentication is disabled for local development.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}

		role := domain.Role(r.Header.Get(UserRoleHeader))
		if role == "" {
			role = domain.RoleMember
		}
		if !role.IsValid() {
			writeError(w, http.StatusUnauthorized, "invalid "+UserRoleHeader+" header")
			return
		}

		p := &Principal{UserID: id, Role: role}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin rejects callers that cannot administer the service.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !p.Role.CanAdminister() {
			writeError(w, http.StatusForbidden, domain.ErrInsufficientRole.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
