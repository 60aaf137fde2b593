package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/qti-engine/session-engine/internal/api/middleware"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/sessionservice"
)

// sessionView is the JSON wire shape for sessionservice.View.
type sessionView struct {
	SessionID      string `json:"sessionId"`
	TestIdentifier string `json:"testIdentifier"`
	State          string `json:"state"`
	Position       int    `json:"position"`
	RouteCount     int    `json:"routeCount"`
	CurrentItemRef string `json:"currentItemRef,omitempty"`
	Completed      bool   `json:"completed"`
}

func toSessionView(v sessionservice.View) sessionView {
	return sessionView{
		SessionID:      v.SessionID,
		TestIdentifier: v.TestIdentifier,
		State:          v.State.String(),
		Position:       v.Position,
		RouteCount:     v.RouteCount,
		CurrentItemRef: v.CurrentItemRef,
		Completed:      v.Completed,
	}
}

// setupRoutes registers every session-driving endpoint on mux.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	middleware.RegisterPublicEndpoint("/healthz")

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/attempts", s.handleBeginAttempt)
	mux.HandleFunc("POST /v1/sessions/{id}/attempts/current", s.handleEndAttempt)
	mux.HandleFunc("POST /v1/sessions/{id}/navigation/next", s.handleMoveNext)
	mux.HandleFunc("POST /v1/sessions/{id}/navigation/back", s.handleMoveBack)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("GET /v1/sessions/{id}/outcomes", s.handleOutcomes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	TestIdentifier string `json:"testIdentifier"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("request body must be valid JSON"))

		return
	}

	if strings.TrimSpace(req.TestIdentifier) == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("testIdentifier is required"))

		return
	}

	view, err := s.sessions.CreateSession(r.Context(), req.TestIdentifier)
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusCreated, toSessionView(view))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	view, err := s.sessions.GetSession(r.Context(), sessionID)
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionView(view))
}

type beginAttemptRequest struct {
	AllowLateSubmission bool `json:"allowLateSubmission"`
}

func (s *Server) handleBeginAttempt(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req beginAttemptRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	view, err := s.sessions.BeginAttempt(r.Context(), sessionID, req.AllowLateSubmission)
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionView(view))
}

type endAttemptRequest struct {
	AllowLateSubmission bool                      `json:"allowLateSubmission"`
	Responses           map[string]qtimodel.Value `json:"responses"`
}

func (s *Server) handleEndAttempt(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req endAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("request body must be valid JSON"))

		return
	}

	responses := qtimodel.NewState()

	for id, value := range req.Responses {
		v := value
		variable := &qtimodel.Variable{
			Identifier:  id,
			Kind:        qtimodel.KindResponse,
			Cardinality: v.Cardinality,
			BaseType:    v.BaseType,
			Value:       &v,
		}

		if err := responses.Declare(variable); err != nil {
			WriteErrorResponse(w, r, s.logger, BadRequest("invalid response for "+id))

			return
		}
	}

	view, err := s.sessions.EndAttempt(r.Context(), sessionID, responses, req.AllowLateSubmission)
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionView(view))
}

func (s *Server) handleMoveNext(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.MoveNext(r.Context(), r.PathValue("id"))
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionView(view))
}

func (s *Server) handleMoveBack(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.MoveBack(r.Context(), r.PathValue("id"))
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionView(view))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.EndTestSession(r.Context(), r.PathValue("id"))
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionView(view))
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.sessions.Outcomes(r.Context(), r.PathValue("id"))
	if s.writeServiceError(w, r, err) {
		return
	}

	s.writeJSON(w, http.StatusOK, outcomes)
}

// writeServiceError maps a sessionservice error to an RFC 7807 response and
// reports whether it wrote one (true means the caller should stop).
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, sessionservice.ErrSessionNotFound):
		WriteErrorResponse(w, r, s.logger, NotFound("no session exists with that id"))
	case errors.Is(err, sessionservice.ErrUnknownTest):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
	default:
		s.logger.Error("session operation failed", "error", err.Error())
		WriteErrorResponse(w, r, s.logger, InternalServerError("the session operation could not be completed"))
	}

	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
