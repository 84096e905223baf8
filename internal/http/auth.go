package http

import (
	"errors"
	"net/http"

	"triage-chatbot/internal/auth"
	"triage-chatbot/pkg"
)

// authenticate resolves the Authorization header, writing 401 on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*pkg.User, bool) {
	u, err := s.Accounts.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err == nil {
		return u, true
	}
	if !errors.Is(err, auth.ErrUnauthenticated) {
		s.Log.Error().Err(err).Msg("authenticate")
		writeError(w, http.StatusInternalServerError, "Database error")
		return nil, false
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "Could not validate credentials")
	return nil, false
}

// require authenticates the caller and checks capability c, writing 403
// when the role lacks it.
func (s *Server) require(w http.ResponseWriter, r *http.Request, c auth.Capability) (*pkg.User, bool) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return nil, false
	}
	if err := auth.Authorize(u, c); err != nil {
		writeError(w, http.StatusForbidden, "Access denied. Doctor privileges required.")
		return nil, false
	}
	return u, true
}
