package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cookchat/cookchat/internal/chat"
	"github.com/cookchat/cookchat/internal/session"
)

// SSE event types for chat streaming.
const (
	eventChunk = "chunk" // partial response text
	eventDone  = "done"  // stream completed successfully
	eventError = "error" // stream failed
)

// chunkPayload is the SSE data payload for streaming text fragments.
type chunkPayload struct {
	Text string `json:"text"`
}

// donePayload closes a successful stream with the assembled turn result.
type donePayload struct {
	Response  string `json:"response"`
	IsRecipe  bool   `json:"is_recipe"`
	SessionID string `json:"session_id"`
}

// errorPayload is the SSE data payload when a stream fails.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// chatHandler serves the blocking and streaming chat endpoints.
// When a Genkit flow is configured the streaming path runs through it for
// tracing; otherwise it calls the service directly (tests).
type chatHandler struct {
	svc    *chat.Service
	flow   *chat.Flow
	logger *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	IsRecipe bool   `json:"is_recipe"`
}

// send handles POST /api/v1/chat: one blocking turn.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, id, ok := h.parseChatRequest(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Chat(r.Context(), id, req.Message)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: result.Response, IsRecipe: result.IsRecipe}, h.logger)
}

// stream handles POST /api/v1/chat/stream: one turn delivered as SSE.
// Events: zero or more "chunk", then exactly one "done" or "error". Client
// disconnects abort the turn without committing it to history.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "invalid_request", Message: "invalid request body"})
		return
	}
	if req.SessionID == "" {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "missing_session_id", Message: "session_id is required"})
		return
	}
	if req.Message == "" {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "missing_message", Message: "message is required"})
		return
	}

	ctx := r.Context()
	h.logger.Debug("SSE stream started", "session_id", req.SessionID)

	var (
		out       chat.Output
		streamErr error
	)
	if h.flow != nil {
		out, streamErr = h.streamViaFlow(ctx, w, flusher, req)
	} else {
		out, streamErr = h.streamDirect(ctx, w, flusher, req)
	}
	if streamErr != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected mid-stream", "session_id", req.SessionID)
			return
		}
		h.writeStreamError(w, flusher, streamErr)
		return
	}

	_ = writeEvent(w, flusher, eventDone, donePayload{
		Response:  out.Response,
		IsRecipe:  out.IsRecipe,
		SessionID: out.SessionID,
	})
	h.logger.Debug("SSE stream completed", "session_id", req.SessionID, "is_recipe", out.IsRecipe)
}

// streamViaFlow runs the turn through the Genkit flow.
func (h *chatHandler) streamViaFlow(ctx context.Context, w io.Writer, flusher http.Flusher, req chatRequest) (chat.Output, error) {
	input := chat.Input{SessionID: req.SessionID, Message: req.Message}

	for sv, err := range h.flow.Stream(ctx, input) {
		if err != nil {
			return chat.Output{}, err
		}
		if sv.Done {
			return sv.Output, nil
		}
		if sv.Stream.Text != "" {
			if werr := writeEvent(w, flusher, eventChunk, chunkPayload{Text: sv.Stream.Text}); werr != nil {
				// Write failure means the client went away.
				return chat.Output{}, werr
			}
		}
	}
	return chat.Output{}, errors.New("stream ended without result")
}

// streamDirect runs the turn against the service without Genkit tracing.
func (h *chatHandler) streamDirect(ctx context.Context, w io.Writer, flusher http.Flusher, req chatRequest) (chat.Output, error) {
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return chat.Output{}, errors.New("session id must be a UUID")
	}

	result, err := h.svc.ChatStream(ctx, id, req.Message,
		func(_ context.Context, chunk string) error {
			return writeEvent(w, flusher, eventChunk, chunkPayload{Text: chunk})
		})
	if err != nil {
		return chat.Output{}, err
	}
	return chat.Output{Response: result.Response, IsRecipe: result.IsRecipe, SessionID: req.SessionID}, nil
}

// parseChatRequest decodes and validates the blocking chat request body.
func (h *chatHandler) parseChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, uuid.UUID, bool) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return req, uuid.Nil, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return req, uuid.Nil, false
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id must be a UUID", h.logger)
		return req, uuid.Nil, false
	}
	return req, id, true
}

// writeChatError maps turn failures onto HTTP statuses.
func (h *chatHandler) writeChatError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}
	h.logger.Error("chat turn failed", "error", err)
	writeError(w, http.StatusBadGateway, "turn_failed", "failed to generate response", h.logger)
}

// writeStreamError maps turn failures onto SSE error events.
func (h *chatHandler) writeStreamError(w io.Writer, f http.Flusher, err error) {
	code := "stream_error"
	if errors.Is(err, session.ErrNotFound) {
		code = "session_not_found"
	}
	h.logger.Error("chat stream failed", "error", err, "code", code)
	_ = writeEvent(w, f, eventError, errorPayload{Code: code, Message: err.Error()})
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "event: "+event+"\ndata: "+string(jsonData)+"\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
