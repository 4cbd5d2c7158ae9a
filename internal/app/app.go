// Package app wires the application together: configuration, Genkit,
// the corpus database, the chat orchestrator, and the recipe derivative
// services. Setup builds the container; Close releases it.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cookchat/cookchat/internal/chat"
	"github.com/cookchat/cookchat/internal/config"
	"github.com/cookchat/cookchat/internal/imagegen"
	"github.com/cookchat/cookchat/internal/knowledge"
	"github.com/cookchat/cookchat/internal/llm"
	"github.com/cookchat/cookchat/internal/recipe"
	"github.com/cookchat/cookchat/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Histories *session.HistoryStore
	Finals    *session.FinalStore

	LLM        *llm.Client
	Chat       *chat.Service
	Flow       *chat.Flow
	Converter  *recipe.Converter
	Translator *llm.EnglishTranslator
	ImageGen   *imagegen.Generator

	otelCleanup func()
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
