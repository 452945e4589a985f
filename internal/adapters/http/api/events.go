package api

import (
	"net/http"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
)

// handlePostEvent handles POST /v1/events. A blocked event is still a 200;
// the body says whether it was accepted.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ok, err := s.engine.TrackEvent(r.Context(), req.PlayerID, req.Token.model(), req.Event, req.Source)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	status := "accepted"
	if !ok {
		status = "blocked"
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: status, Accepted: ok})
}

// handlePostReport handles POST /v1/reports.
func (s *Server) handlePostReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_report"
	var req reportRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	validated, err := s.engine.Report(r.Context(), req.PlayerID, req.Token.model(), ClientReport{
		ID:      req.ID,
		Type:    model.DetectionType(req.Type),
		Reason:  req.Reason,
		Payload: req.Payload,
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	status := "unconfirmed"
	if validated {
		status = "confirmed"
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: status, Accepted: validated})
}

// handlePushState handles POST /v1/gamestate from the trusted game server.
func (s *Server) handlePushState(w http.ResponseWriter, r *http.Request) {
	const op = "api.push_state"
	var req gameStateRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	states := make(map[int]model.Observation, len(req.States))
	for _, e := range req.States {
		o := model.Observation{State: e.State}
		if e.ObservedAt > 0 {
			o.ObservedAt = time.UnixMilli(e.ObservedAt)
		}
		states[e.PlayerID] = o
	}
	if err := s.engine.PushState(r.Context(), states); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "stored", Accepted: true})
}
