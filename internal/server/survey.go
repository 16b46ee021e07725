package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/observability"
	"github.com/Bens368/IGIA/internal/survey"
)

// SurveyHandler handles data-maturity chat sessions.
type SurveyHandler struct {
	deps   Deps
	logger *observability.Logger
}

// NewSurveyHandler creates a new survey handler.
func NewSurveyHandler(deps Deps) *SurveyHandler {
	return &SurveyHandler{deps: deps, logger: deps.Logger.WithOperation("survey")}
}

// SessionDTO is the visible state of a session.
type SessionDTO struct {
	ID        string               `json:"id"`
	Model     string               `json:"model"`
	CreatedAt time.Time            `json:"created_at"`
	Messages  []domain.ChatMessage `json:"messages"`
}

// MessageRequest is the body of a user turn.
type MessageRequest struct {
	Content string `json:"content"`
}

func sessionDTO(s *survey.Session) SessionDTO {
	return SessionDTO{ID: s.ID, Model: s.Model, CreatedAt: s.CreatedAt, Messages: s.Visible()}
}

// Create handles POST /api/v1/survey/sessions.
func (h *SurveyHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := survey.NewSession(h.deps.Config.LLM.ChatModel, h.deps.Instructions)
	s.Credential = bearerToken(r)
	h.deps.Sessions.Add(s)

	h.logger.Info().Str("session_id", s.ID).Bool("credential", s.Credential != "").Msg("Survey session started")
	writeJSON(w, http.StatusCreated, sessionDTO(s))
}

// Get handles GET /api/v1/survey/sessions/{sessionID}.
func (h *SurveyHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.deps.Sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO(s))
}

// Send handles POST /api/v1/survey/sessions/{sessionID}/messages, streaming
// the reply as server-sent events.
func (h *SurveyHandler) Send(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, ok := h.deps.Sessions.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required", "")
		return
	}

	apiKey := s.Credential
	if apiKey == "" {
		apiKey = bearerToken(r)
	}
	if apiKey == "" {
		apiKey = h.deps.Config.LLM.APIKey
	}
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key", "send Authorization: Bearer <key>")
		return
	}
	models, err := h.deps.NewModels(apiKey)
	if err != nil {
		writeError(w, statusFor(err), "failed to create model client", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reply, err := s.Send(r.Context(), models, req.Content, func(chunk string) {
		writeEvent(w, map[string]string{"delta": chunk})
		flusher.Flush()
	})
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Int("reply_bytes", len(reply)).Msg("Survey reply failed")
		writeEvent(w, map[string]string{"error": err.Error()})
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, payload map[string]string) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
