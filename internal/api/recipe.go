package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/cookchat/cookchat/internal/chat"
	"github.com/cookchat/cookchat/internal/recipe"
)

// ImageGenerator produces an image reference for a text prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Translator converts text to English for the image generator.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// recipeHandler serves finalize and the finalized-recipe derivatives
// (structured conversion, image generation).
type recipeHandler struct {
	svc        *chat.Service
	sessions   *sessionHandler
	converter  *recipe.Converter  // nil disables the structured endpoint
	imageGen   ImageGenerator     // nil disables the image endpoint
	translator Translator         // nil = prompts pass through untranslated
	logger     *slog.Logger

	// generating is the image-generation single-flight flag. The generator
	// drives one shared headless browser target; overlapping runs would mix
	// outputs, so concurrent requests get 409.
	generating atomic.Bool
}

type finalizeRequest struct {
	UserConfirmation string `json:"user_confirmation"`
}

// finalize handles POST /api/v1/sessions/{id}/finalize.
func (h *recipeHandler) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessions.sessionID(w, r)
	if !ok {
		return
	}

	// Body is optional; an empty or absent confirmation finalizes as-is.
	var req finalizeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	_ = json.NewDecoder(r.Body).Decode(&req)

	final, err := h.svc.Finalize(id, req.UserConfirmation)
	if err != nil {
		h.sessions.writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, final, h.logger)
}

// getRecipe handles GET /api/v1/sessions/{id}/recipe.
func (h *recipeHandler) getRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessions.sessionID(w, r)
	if !ok {
		return
	}

	final, err := h.svc.GetFinalRecipe(id)
	if err != nil {
		h.sessions.writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, final, h.logger)
}

// getStructuredRecipe handles POST /api/v1/sessions/{id}/recipe/structured:
// convert the finalized free-text recipe into the structured JSON form.
func (h *recipeHandler) getStructuredRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessions.sessionID(w, r)
	if !ok {
		return
	}

	final, err := h.svc.GetFinalRecipe(id)
	if err != nil {
		h.sessions.writeNotFound(w, err)
		return
	}
	sess, err := h.svc.GetSessionInfo(id)
	if err != nil {
		h.sessions.writeNotFound(w, err)
		return
	}

	structured, err := h.converter.Convert(r.Context(), final.Content, final.Name,
		sess.Profile.Allergies, string(sess.Profile.CookingLevel))
	if err != nil {
		h.logger.Error("converting recipe", "error", err, "session_id", id)
		writeError(w, http.StatusBadGateway, "conversion_failed", "failed to structure recipe", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, structured, h.logger)
}

type imageResponse struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

// generateImage handles POST /api/v1/sessions/{id}/recipe/image: render the
// finalized recipe's image prompt through the browser-driven generator.
// At most one generation runs at a time; concurrent callers get 409.
func (h *recipeHandler) generateImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessions.sessionID(w, r)
	if !ok {
		return
	}

	final, err := h.svc.GetFinalRecipe(id)
	if err != nil {
		h.sessions.writeNotFound(w, err)
		return
	}

	if !h.generating.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "generation_in_progress", "an image generation is already running", h.logger)
		return
	}
	defer h.generating.Store(false)

	prompt := final.ImagePrompt
	if h.translator != nil {
		prompt = h.translator.Translate(r.Context(), prompt)
	}

	imageURL, err := h.imageGen.Generate(r.Context(), prompt)
	if err != nil {
		h.logger.Error("generating image", "error", err, "session_id", id)
		writeError(w, http.StatusBadGateway, "image_generation_failed", "failed to generate image", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, imageResponse{ImageURL: imageURL, Prompt: prompt}, h.logger)
}
