package api

import (
	"context"
	"net/http"

	"github.com/okian/sentinel/internal/domain/token"
)

// ServerAuthorizer checks the credential a game server presents.
type ServerAuthorizer interface {
	AuthorizeServer(ctx context.Context, header string) error
}

// WithServerAuth guards the server-only routes with a.
func WithServerAuth(a ServerAuthorizer) Option {
	return func(s *Server) {
		if a != nil {
			s.serverAuth = a
		}
	}
}

// serverOnly refuses requests without a valid game-server credential. With
// no authorizer configured every request is refused.
func (s *Server) serverOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.server_auth"
		w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel-server"`)
		if s.serverAuth == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
			return
		}
		if err := s.serverAuth.AuthorizeServer(r.Context(), r.Header.Get(token.ServerCredentialHeader)); err != nil {
			s.fail(w, r, op, err)
			return
		}
		w.Header().Del("WWW-Authenticate")
		next(w, r)
	}
}
