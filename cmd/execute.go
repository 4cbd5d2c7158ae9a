// Package cmd contains the command-line entry points: the HTTP API server
// and the corpus indexer.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/cookchat/cookchat/internal/config"
	"github.com/cookchat/cookchat/internal/log"
)

// Execute is the main entry point, called from main().
// It routes to a subcommand and handles all initialization.
func Execute() error {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe()
		case "index":
			return runIndex()
		default:
			printHelp()
			return fmt.Errorf("unknown command: %s", os.Args[1])
		}
	}

	// Default behavior: serve.
	return runServe()
}

// initLogger builds the process-wide structured logger.
// DEBUG env var (any value) enables debug level. Logs go to stderr.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: os.Getenv("LOG_FORMAT") == "json"})
}

// checkRequiredEnv verifies the provider's API key is present, with setup
// instructions when it is not. Ollama runs locally and needs no key.
func checkRequiredEnv(cfg *config.Config) error {
	var envVar, hint string
	switch cfg.Provider {
	case config.ProviderGemini:
		envVar, hint = "GEMINI_API_KEY", "https://ai.google.dev/"
	case config.ProviderOpenAI:
		envVar, hint = "OPENAI_API_KEY", "https://platform.openai.com/"
	default:
		return nil
	}

	if os.Getenv(envVar) == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable not set\n\n", envVar)
		fmt.Fprintf(os.Stderr, "To set your API key:\n  export %s=your-api-key\n\n", envVar)
		fmt.Fprintf(os.Stderr, "Get your API key at: %s\n", hint)
		return fmt.Errorf("%s not set", envVar)
	}
	return nil
}

func printHelp() {
	fmt.Println(`cookchat - recipe generation chat backend

Usage:
  cookchat serve [addr]       Start the HTTP API server (default :8000)
  cookchat index <file>       Index a JSONL recipe corpus into the database
  cookchat version            Print version information
  cookchat help               Show this help`)
}
