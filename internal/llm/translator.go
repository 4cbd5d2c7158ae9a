package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Translator converts text to English for downstream consumers that only
// accept English input (the image generator's prompt box).
type Translator interface {
	// Translate returns the English rendering of text. Best effort: on any
	// upstream failure the original text is returned unchanged.
	Translate(ctx context.Context, text string) string
}

// EnglishTranslator translates via a single model call. Failures are logged
// and swallowed; translation is cosmetic and must never block the caller.
type EnglishTranslator struct {
	transform func(ctx context.Context, system, prompt string) (string, error)
	logger    *slog.Logger
}

// NewEnglishTranslator creates a best-effort English translator on top of a
// single-turn transform, typically Client.Transform.
func NewEnglishTranslator(transform func(ctx context.Context, system, prompt string) (string, error), logger *slog.Logger) *EnglishTranslator {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnglishTranslator{transform: transform, logger: logger}
}

// Translate returns the English rendering of text, or text itself when the
// model call fails or produces an empty result.
func (t *EnglishTranslator) Translate(ctx context.Context, text string) string {
	prompt := fmt.Sprintf("Please translate to English only: %s", text)

	out, err := t.transform(ctx, "", prompt)
	if err != nil {
		t.logger.Warn("translation failed, using original text", "error", err)
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return strings.TrimSpace(out)
}
