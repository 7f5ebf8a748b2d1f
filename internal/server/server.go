package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/course"
	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// UserHeader carries the authenticated user id. Requests without it run in
// guest mode.
const UserHeader = "X-User-ID"

const (
	maxBodyBytes = 1 << 16
	checkTimeout = 2 * time.Second
)

// Checker reports whether a backing service is reachable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Server serves the quiz HTTP API.
type Server struct {
	manager *Manager
	checks  map[string]Checker
}

// New creates a server. checks are pinged by /readyz.
func New(manager *Manager, checks map[string]Checker) *Server {
	if checks == nil {
		checks = map[string]Checker{}
	}
	return &Server{manager: manager, checks: checks}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("POST /quizzes", s.handleStart)
	mux.HandleFunc("GET /sessions/{id}", s.handleView)
	mux.HandleFunc("POST /sessions/{id}/answer", s.handleAnswer)
	mux.HandleFunc("POST /sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /sessions/{id}/restart", s.handleRestart)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleClose)
	mux.HandleFunc("GET /sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /sessions/{id}/report.xlsx", s.handleReport)
	return mux
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// StartRequest is the body of POST /quizzes.
type StartRequest struct {
	CourseID string `json:"course_id"`
}

// StartResponse is returned by POST /quizzes.
type StartResponse struct {
	SessionID string    `json:"session_id"`
	View      quiz.View `json:"view"`
}

// AnswerRequest is the body of POST /sessions/{id}/answer.
type AnswerRequest struct {
	Option *int `json:"option"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := map[string]any{"status": "ready"}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	if len(results) > 0 {
		body["checks"] = results
	}
	writeJSON(w, status, body)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), false)
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	if req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "course_id is required", false)
		return
	}

	id := identityFrom(r)
	sessionID, session, err := s.manager.Start(r.Context(), req.CourseID, id)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, StartResponse{SessionID: sessionID, View: session.View()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req AnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), false)
		return
	}
	if req.Option == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "option is required", false)
		return
	}
	if err := session.SelectAnswer(*req.Option); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Advance(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Restart(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Close(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", err.Error(), false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*quiz.Session, bool) {
	session, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", err.Error(), false)
		return nil, false
	}
	return session, true
}

// writeLoadError maps a load failure to its HTTP status. Every load failure
// can be retried by re-issuing the request.
func (s *Server) writeLoadError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	reason := "Failed to load quiz"
	switch {
	case errors.Is(err, course.ErrCourseNotFound):
		status = http.StatusNotFound
		reason = "Course not found"
	case errors.Is(err, course.ErrNoQuestionsAvailable):
		status = http.StatusUnprocessableEntity
		reason = "No quiz questions available for this course yet. Please try re-uploading the course to generate questions."
	case errors.Is(err, course.ErrQuestionsCorrupted):
		status = http.StatusUnprocessableEntity
		reason = "Quiz questions are corrupted. Please try re-uploading the course."
	}

	kind := course.Kind(err)
	if kind == "" {
		kind = "load_failed"
	}
	writeError(w, status, kind, s.manager.Messages().Text(notify.KeyLoadFailed, reason), true)
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, "invalid_option", err.Error(), false)
	case errors.Is(err, quiz.ErrNotInProgress):
		writeError(w, http.StatusConflict, "not_in_progress", err.Error(), false)
	case errors.Is(err, quiz.ErrNoSelection):
		writeError(w, http.StatusConflict, "no_selection", err.Error(), false)
	case errors.Is(err, quiz.ErrClosed):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error(), false)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), false)
	}
}

func identityFrom(r *http.Request) course.Identity {
	return course.Identity{UserID: strings.TrimSpace(r.Header.Get(UserHeader))}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string, retryable bool) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code, Retryable: retryable})
}
