package api

import (
	"net/http"

	"github.com/mattjoyce/lexgate/internal/auth"
)

// authMiddleware resolves the bearer token into a principal. An empty
// keyring leaves the API open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.keyring.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.keyring.Resolve(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error(), "")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes rejects principals holding none of anyOf.
func (s *Server) requireScopes(anyOf ...auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.keyring.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !principal.Allows(anyOf...) {
				s.logger.Debug("scope denied", "principal", principal.Name, "path", r.URL.Path)
				s.writeError(w, http.StatusForbidden, "insufficient scope", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
