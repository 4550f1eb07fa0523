package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
)

const (
	maxRequestBytes = 1 << 20
	historyLimit    = 50
)

// Handler serves the chat API: POST /chat, GET /chat/history and
// POST /chat/save, relative to wherever it is mounted.
type Handler struct {
	responder Responder
	sessions  chatstore.SessionStore
	seed      []chat.Conversation
	saved     *idempotencyCache
	logger    zerolog.Logger
	mux       *http.ServeMux
}

func NewHandler(responder Responder, sessions chatstore.SessionStore, seed []chat.Conversation) *Handler {
	h := &Handler{
		responder: responder,
		sessions:  sessions,
		seed:      seed,
		saved:     newIdempotencyCache(),
		logger:    log.With().Str("component", "api").Logger(),
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("/chat", h.handleChat)
	h.mux.HandleFunc("/chat/history", h.handleHistory)
	h.mux.HandleFunc("/chat/save", h.handleSave)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type saveRequest struct {
	Messages []chat.Message `json:"messages"`
}

type saveResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if h.responder == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant is not available")
		return
	}
	reply, err := h.responder.Reply(r.Context(), text)
	if err != nil {
		h.logger.Error().Err(err).Msg("responder failed")
		writeError(w, http.StatusInternalServerError, "Failed to generate a reply")
		return
	}
	h.logger.Debug().Int("message_len", len(text)).Int("reply_len", len(reply)).Msg("chat reply")
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	convs := make([]chat.Conversation, 0, len(h.seed))
	if h.sessions != nil {
		recs, err := h.sessions.ListSessions(r.Context(), historyLimit)
		if err != nil {
			h.logger.Error().Err(err).Msg("list sessions failed")
			writeError(w, http.StatusInternalServerError, "Failed to load chat history")
			return
		}
		for _, rec := range recs {
			convs = append(convs, rec.Conversation())
		}
	}
	for _, c := range h.seed {
		convs = append(convs, c.Clone())
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session storage is not configured")
		return
	}
	key := idempotencyKeyFromRequest(r)
	var savedID string
	if key != "" {
		id, owner, err := h.saved.acquire(r.Context(), key)
		if err != nil {
			h.logger.Debug().Err(err).Msg("request ended while waiting for an idempotent save")
			writeError(w, http.StatusRequestTimeout, "request cancelled")
			return
		}
		if !owner {
			h.logger.Debug().Str("session_id", id).Msg("replaying idempotent save")
			writeJSON(w, http.StatusOK, saveResponse{ID: id})
			return
		}
		defer func() { h.saved.release(key, savedID) }()
	}
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.sessions.SaveSession(r.Context(), req.Messages)
	switch {
	case errors.Is(err, chatstore.ErrEmptySession):
		writeError(w, http.StatusBadRequest, "no messages to save")
		return
	case errors.Is(err, chatstore.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("save session failed")
		writeError(w, http.StatusInternalServerError, "Failed to save chat session")
		return
	}
	savedID = rec.ID
	h.logger.Info().Str("session_id", rec.ID).Int("messages", len(rec.Messages)).Msg("session saved")
	writeJSON(w, http.StatusCreated, saveResponse{ID: rec.ID})
}

func decodeJSON(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	return errors.Wrap(json.Unmarshal(b, v), "decode body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
