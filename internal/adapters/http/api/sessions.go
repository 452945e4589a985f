package api

import (
	"net/http"
)

// handleConnect handles POST /v1/sessions.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.connect"
	var req playerRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	tok, err := s.engine.Connect(r.Context(), req.PlayerID)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{PlayerID: req.PlayerID, Token: tok})
}

// handleDisconnect handles DELETE /v1/sessions/{id}.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.disconnect"
	id, err := pathPlayerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sum, err := s.engine.Disconnect(r.Context(), id)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	id, err := pathPlayerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	view, err := s.engine.Session(r.Context(), id)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleReset handles POST /v1/sessions/{id}/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	const op = "api.reset"
	id, err := pathPlayerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := s.engine.ResetTrust(r.Context(), id); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "reset", Accepted: true})
}

// handleIssueToken handles POST /v1/tokens.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	const op = "api.issue_token"
	var req playerRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	tok, err := s.engine.IssueToken(r.Context(), req.PlayerID)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{PlayerID: req.PlayerID, Token: tok})
}
