package web

import (
	"net/http"
	"strings"

	"github.com/vbonduro/partsledger/internal/auth"
	"github.com/vbonduro/partsledger/internal/domain"
)

// authed rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "access token required")
			return
		}
		p, err := s.tokens.Parse(token)
		if err != nil {
			s.logger.Debug("token rejected", "path", r.URL.Path, "error", err)
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// admin is authed plus a role check.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsAdmin() {
			writeErrorMessage(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next(w, r)
	})
}

// principal returns the caller stored by authed. Handlers behind authed
// always have one.
func principal(r *http.Request) domain.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
