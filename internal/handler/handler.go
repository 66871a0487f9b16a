// Package handler contains the transport front ends: the request/response
// JSON API, the websocket push transport, and the raw stream transport.
// Each maps its native protocol onto the event contract and nothing more.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/interviewer/internal/event"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
)

// Handler serves the request/response API.
type Handler struct {
	svc            *Service
	sessionTimeout time.Duration
}

// New creates the REST handler.
func New(svc *Service, sessionTimeout time.Duration) *Handler {
	return &Handler{svc: svc, sessionTimeout: sessionTimeout}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/session/start", h.handleStart)
	r.Post("/session/{sessionID}/message", h.handleMessage)
	r.Get("/session/{sessionID}/state", h.handleState)
	r.Post("/session/{sessionID}/end", h.handleEnd)
	r.Get("/session/{sessionID}/export", h.handleExport)
	r.Delete("/session/{sessionID}", h.handleDelete)
	r.Get("/sessions/stats", h.handleStats)
	r.Post("/sessions/cleanup", h.handleCleanup)
}

// envelope is the common JSON response wrapper for read endpoints.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

type startRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
}

type startResponse struct {
	SessionID     string                 `json:"session_id"`
	Welcome       string                 `json:"welcome"`
	FirstQuestion *event.QuestionPayload `json:"first_question,omitempty"`
	CandidateName string                 `json:"candidate_name,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil {
		// An empty body is fine; the id and name are both optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id, result, err := h.svc.StartSession(req.SessionID, req.CandidateName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := startResponse{
		SessionID:     id,
		Welcome:       result.Reply,
		CandidateName: req.CandidateName,
	}
	if result.NextQuestion != nil {
		q := result.NextQuestion
		resp.FirstQuestion = &event.QuestionPayload{
			ID:               q.ID,
			Prompt:           q.Prompt,
			Difficulty:       q.Difficulty,
			ExpectedConcepts: q.ExpectedConcepts,
		}
	}
	slog.Info("started session", "session_id", id, "candidate", req.CandidateName)
	writeJSON(w, http.StatusOK, resp)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{
			Success:   false,
			Message:   "invalid request body",
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return
	}

	result, err := h.svc.Submit(r.Context(), sessionID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Request/response transport: the dispatched events are the response
	// body. The post-feedback delay is a push affordance and is skipped.
	events := h.svc.Dispatcher().Events(sessionID, result)
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      map[string]any{"events": events},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	state, err := h.svc.Sessions().Get(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	meta, err := h.svc.Sessions().Metadata(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"state":            state,
			"session_metadata": meta,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

type endResponse struct {
	SessionID       string   `json:"session_id"`
	AverageScore    float64  `json:"average_score"`
	TotalQuestions  int      `json:"total_questions"`
	FollowUpsCount  int      `json:"followups_count"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	state, err := h.svc.Sessions().Get(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Rule-based summary only: this endpoint must work with the evaluator
	// unreachable.
	s := interview.Summarize(state.PerformanceLog)
	writeJSON(w, http.StatusOK, endResponse{
		SessionID:       sessionID,
		AverageScore:    s.AverageScore,
		TotalQuestions:  s.MainCount,
		FollowUpsCount:  s.FollowUpCount,
		Strengths:       s.Strengths,
		Weaknesses:      s.Weaknesses,
		Recommendations: s.Recommendations,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	state, err := h.svc.Sessions().Get(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	meta, err := h.svc.Sessions().Metadata(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: model.SessionExport{
			SessionID:  sessionID,
			ExportedAt: time.Now(),
			Metadata:   meta,
			State:      *state,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.Sessions().Delete(sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      h.svc.Sessions().Stats(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed := h.svc.Sessions().SweepExpired(h.sessionTimeout)
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      map[string]int{"cleaned_sessions": removed},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// writeError maps core errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interview.ErrEmptyAnswer):
		status = http.StatusBadRequest
	case errors.Is(err, interview.ErrSessionCompleted):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, envelope{
		Success:   false,
		Message:   err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
