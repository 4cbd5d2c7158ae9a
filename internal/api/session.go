package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cookchat/cookchat/internal/chat"
	"github.com/cookchat/cookchat/internal/session"
)

// maxBodySize bounds request bodies; recipe follow-ups are short text.
const maxBodySize = 1 << 20

// sessionHandler serves the session lifecycle endpoints.
type sessionHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

type createSessionRequest struct {
	Allergy      []string `json:"allergy"`
	Preferences  string   `json:"preferences"`
	CookingLevel string   `json:"cooking_level"`
	FoodType     string   `json:"food_type"`
}

type createSessionResponse struct {
	SessionID      string `json:"session_id"`
	InitialMessage string `json:"initial_message"`
}

// createSession handles POST /api/v1/sessions: create a session and run the
// synthesized opening turn.
func (h *sessionHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.FoodType == "" {
		writeError(w, http.StatusBadRequest, "missing_food_type", "food_type is required", h.logger)
		return
	}

	result, err := h.svc.InitSession(r.Context(), session.Profile{
		Allergies:    req.Allergy,
		Preferences:  req.Preferences,
		CookingLevel: session.NormalizeLevel(req.CookingLevel),
		FoodType:     req.FoodType,
	})
	if err != nil {
		h.logger.Error("initializing session", "error", err)
		writeError(w, http.StatusBadGateway, "init_failed", "failed to generate initial recipe", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:      result.SessionID.String(),
		InitialMessage: result.InitialMessage,
	}, h.logger)
}

type sessionInfoResponse struct {
	Allergy      []string `json:"allergy"`
	Preferences  string   `json:"preferences"`
	CookingLevel string   `json:"cooking_level"`
	FoodType     string   `json:"food_type"`
	IsFinalized  bool     `json:"is_finalized"`
}

// getSession handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.svc.GetSessionInfo(id)
	if err != nil {
		h.writeNotFound(w, err)
		return
	}

	allergy := sess.Profile.Allergies
	if allergy == nil {
		allergy = []string{}
	}
	writeJSON(w, http.StatusOK, sessionInfoResponse{
		Allergy:      allergy,
		Preferences:  sess.Profile.Preferences,
		CookingLevel: string(sess.Profile.CookingLevel),
		FoodType:     sess.Profile.FoodType,
		IsFinalized:  sess.IsFinalized,
	}, h.logger)
}

type historyResponse struct {
	Messages []session.Message `json:"messages"`
}

// getHistory handles GET /api/v1/sessions/{id}/history.
func (h *sessionHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	messages, err := h.svc.GetHistory(id)
	if err != nil {
		h.writeNotFound(w, err)
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages}, h.logger)
}

// deleteSession handles DELETE /api/v1/sessions/{id}.
func (h *sessionHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if !h.svc.DeleteSession(id) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionID parses the {id} path segment, writing a 400 on failure.
func (h *sessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// writeNotFound maps orchestrator lookup failures onto the 404 contract.
// Anything else is an internal error.
func (h *sessionHandler) writeNotFound(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
	case errors.Is(err, chat.ErrNoRecipe):
		writeError(w, http.StatusNotFound, "no_recipe", "no recipe to finalize", h.logger)
	default:
		h.logger.Error("session operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
