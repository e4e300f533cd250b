package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
)

const principalKey contextKey = "principal"

// Auth resolves the bearer token to a member and stores it in the request
// context. Requests without a valid token for an active member are rejected
// before they reach any handler. The health endpoint stays open.
func Auth(members repo.MemberRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "missing bearer token")
				return
			}

			member, err := members.GetMemberByToken(r.Context(), token)
			if err != nil {
				if domain.IsKind(err, domain.ErrNotFound) {
					WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "invalid token")
					return
				}
				WriteDomainError(w, err)
				return
			}
			if !member.Active {
				WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "member is inactive")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, member)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the authenticated member stored by Auth.
func PrincipalFrom(ctx context.Context) (*domain.Member, bool) {
	m, ok := ctx.Value(principalKey).(*domain.Member)
	return m, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
