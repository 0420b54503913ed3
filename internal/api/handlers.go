package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/yegors/agent-desktop/internal/assist"
	"github.com/yegors/agent-desktop/internal/audio"
	"github.com/yegors/agent-desktop/internal/call"
	"github.com/yegors/agent-desktop/internal/storage/sqlite"
	"github.com/yegors/agent-desktop/pkg/logger"
)

// CallOrchestrator is the orchestrator surface the API needs
type CallOrchestrator interface {
	Start() (string, error)
	Stop() error
	NotifyPlayed(file string)
	State() call.State
	PlaybackPlan() []string
}

// TranscriptStore is the transcript storage surface the API needs
type TranscriptStore interface {
	Load() ([]sqlite.TranscriptTurn, error)
	Replace(turns []sqlite.TranscriptTurn) error
}

// AssistGateway is the generative-text surface the API needs
type AssistGateway interface {
	Suggestions(ctx context.Context, turns []sqlite.TranscriptTurn, ticket assist.Ticket) ([]string, error)
	WrapUpSummary(ctx context.Context, turns []sqlite.TranscriptTurn, ticket assist.Ticket, playbook assist.Playbook) (assist.WrapUp, error)
}

// Handler contains the API handlers
type Handler struct {
	orchestrator CallOrchestrator
	store        TranscriptStore
	assist       AssistGateway
	wsHandler    http.HandlerFunc
	logger       *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(orchestrator CallOrchestrator, store TranscriptStore, assistGateway AssistGateway, wsHandler http.HandlerFunc, logger *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		assist:       assistGateway,
		wsHandler:    wsHandler,
		logger:       logger.Named("api-handler"),
	}
}

type suggestionsRequest struct {
	Transcript []sqlite.TranscriptTurn `json:"transcript"`
	Ticket     assist.Ticket           `json:"ticket"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
	Error       string   `json:"error,omitempty"`
}

// PostSuggestions returns three short agent suggestions for the transcript.
// Upstream failure yields a 500 whose body still carries the well-shaped
// fallback suggestions.
func (h *Handler) PostSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	suggestions, err := h.assist.Suggestions(r.Context(), req.Transcript, req.Ticket)
	if err != nil {
		h.respondJSON(w, http.StatusInternalServerError, suggestionsResponse{
			Suggestions: suggestions,
			Error:       "Failed to fetch suggestions",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}

type summaryRequest struct {
	Transcript []sqlite.TranscriptTurn `json:"transcript"`
	Ticket     *assist.Ticket          `json:"ticket"`
	Playbook   assist.Playbook         `json:"playbook"`
}

type summaryResponse struct {
	assist.WrapUp
	Error string `json:"error,omitempty"`
}

// PostSummary generates the wrap-up summary for the call. Same fallback
// policy as PostSuggestions.
func (h *Handler) PostSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Transcript == nil || req.Ticket == nil {
		h.respondError(w, http.StatusBadRequest, "Transcript and ticket are required")
		return
	}

	wrapUp, err := h.assist.WrapUpSummary(r.Context(), req.Transcript, *req.Ticket, req.Playbook)
	if err != nil {
		h.respondJSON(w, http.StatusInternalServerError, summaryResponse{
			WrapUp: wrapUp,
			Error:  "Failed to generate summary",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, summaryResponse{WrapUp: wrapUp})
}

// SaveTranscript replaces the persisted transcript with the client's copy
func (h *Handler) SaveTranscript(w http.ResponseWriter, r *http.Request) {
	var turns []sqlite.TranscriptTurn
	if err := json.NewDecoder(r.Body).Decode(&turns); err != nil {
		h.respondError(w, http.StatusBadRequest, "transcript must be an array")
		return
	}

	if err := h.store.Replace(turns); err != nil {
		h.logger.Error("Failed to save transcript", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to save transcript")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetTranscript returns the persisted transcript turns
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	turns, err := h.store.Load()
	if err != nil {
		h.logger.Error("Failed to load transcript", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if turns == nil {
		turns = []sqlite.TranscriptTurn{}
	}
	h.respondJSON(w, http.StatusOK, turns)
}

type playbackCompleteRequest struct {
	File string `json:"file"`
}

// PlaybackComplete records that the viewer finished playing a segment.
// Duplicate notifications for the same file are deliberate no-ops.
func (h *Handler) PlaybackComplete(w http.ResponseWriter, r *http.Request) {
	var req playbackCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.File == "" {
		h.respondError(w, http.StatusBadRequest, "file is required")
		return
	}

	h.orchestrator.NotifyPlayed(req.File)
	h.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// StartCall starts a new call session
func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.orchestrator.Start()
	if err != nil {
		h.logger.Error("Failed to start call", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to start call")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

// StopCall ends the active call session
func (h *Handler) StopCall(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Stop(); err != nil {
		h.logger.Error("Failed to stop call", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to stop call")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetHealth returns the health check response
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleWebSocket upgrades to the live update channel
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler(w, r)
}

// StreamFullCall streams the whole playback plan as one concatenated audio
// stream, the single-file variant of the call audio.
func (h *Handler) StreamFullCall(w http.ResponseWriter, r *http.Request) {
	plan := h.orchestrator.PlaybackPlan()
	if len(plan) == 0 {
		h.respondError(w, http.StatusNotFound, "no call audio available")
		return
	}

	reader := audio.NewConcatReader(plan...)
	defer reader.Close()

	w.Header().Set("Content-Type", "audio/wav")
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Debug("Full-call stream aborted", logger.Error(err))
	}
}

// respondJSON writes a JSON response with the given status
func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// respondError writes a JSON error response
func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
