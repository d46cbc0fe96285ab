package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nugget/onboard/internal/fields"
	"github.com/nugget/onboard/internal/llm"
	"github.com/nugget/onboard/internal/onboarding"
)

// StartRequest opens a session.
type StartRequest struct {
	UserID string `json:"user_id"`
}

// AnswerRequest submits one user answer.
type AnswerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// OnboardingResponse is the envelope for start and answer calls.
// Profile and CompletionMessage are present only on completion.
type OnboardingResponse struct {
	SessionID         string             `json:"session_id"`
	Success           bool               `json:"success"`
	Response          string             `json:"response"`
	IsComplete        bool               `json:"is_complete"`
	Profile           map[string]*string `json:"profile,omitempty"`
	CompletionMessage string             `json:"completion_message,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

// TurnResponse is one conversation entry in a session dump.
type TurnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionResponse is the full state returned by the session endpoint.
type SessionResponse struct {
	SessionID           string             `json:"session_id"`
	UserID              string             `json:"user_id"`
	Status              string             `json:"status"`
	Profile             map[string]*string `json:"profile"`
	MissingFields       []string           `json:"missing_fields"`
	ConversationHistory []TurnResponse     `json:"conversation_history"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
}

// profileView renders every schema field, with null for unset ones.
func profileView(schema *fields.Schema, p onboarding.Profile) map[string]*string {
	out := make(map[string]*string)
	for _, name := range schema.Names() {
		if v, ok := p[name]; ok && v != "" {
			out[name] = &v
		} else {
			out[name] = nil
		}
	}
	return out
}

func (s *Server) envelope(reply *onboarding.Reply) OnboardingResponse {
	resp := OnboardingResponse{
		SessionID:  reply.SessionID,
		Success:    true,
		Response:   reply.Text,
		IsComplete: reply.IsComplete,
	}
	if reply.IsComplete {
		resp.Profile = profileView(s.svc.Schema(), reply.Profile)
		resp.CompletionMessage = reply.CompletionMessage
	}
	return resp
}

func sessionView(schema *fields.Schema, sess *onboarding.Session) SessionResponse {
	history := make([]TurnResponse, len(sess.History))
	for i, t := range sess.History {
		history[i] = TurnResponse{Role: string(t.Speaker), Content: t.Text, Timestamp: t.CreatedAt}
	}
	missing := schema.Missing(sess.Profile)
	if missing == nil {
		missing = []string{}
	}
	resp := SessionResponse{
		SessionID:           sess.ID,
		UserID:              sess.UserID,
		Status:              string(sess.Status),
		Profile:             profileView(schema, sess.Profile),
		MissingFields:       missing,
		ConversationHistory: history,
		CreatedAt:           sess.CreatedAt,
		UpdatedAt:           sess.UpdatedAt,
	}
	if !sess.CompletedAt.IsZero() {
		t := sess.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, onboarding.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, onboarding.ErrSessionCompleted),
		errors.Is(err, onboarding.ErrInvalidSessionID),
		errors.Is(err, onboarding.ErrEmptyAnswer),
		errors.Is(err, onboarding.ErrEmptyUserID):
		return http.StatusBadRequest
	case llm.IsConfigurationError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, ErrorResponse{Error: message, Detail: detail}, s.logger)
}

// serviceError writes the reply for an error returned by the service.
// Internal errors are logged in full and reported generically.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	switch code {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.errorResponse(w, code, "internal server error", "")
	case http.StatusServiceUnavailable:
		s.logger.Error("provider not configured", "error", err)
		s.errorResponse(w, code, "language model provider is not configured", err.Error())
	default:
		s.logger.Warn("request rejected", "path", r.URL.Path, "status", code, "error", err)
		s.errorResponse(w, code, err.Error(), "")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	return dec.Decode(v)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	reply, err := s.svc.Start(r.Context(), req.UserID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.envelope(reply), s.logger)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	reply, err := s.svc.Answer(r.Context(), req.SessionID, req.Answer)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.envelope(reply), s.logger)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sessionView(s.svc.Schema(), sess), s.logger)
}
