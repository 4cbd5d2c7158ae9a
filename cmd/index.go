package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cookchat/cookchat/internal/app"
	"github.com/cookchat/cookchat/internal/config"
	"github.com/cookchat/cookchat/internal/knowledge"
)

// runIndex loads a JSONL recipe corpus into the retrieval database.
// Usage: cookchat index <file.jsonl>
func runIndex() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: cookchat index <file.jsonl>")
	}
	path := os.Args[2]

	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := checkRequiredEnv(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	indexer := knowledge.NewIndexer(a.Knowledge, logger)
	count, err := indexer.IndexJSONL(ctx, f)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	fmt.Printf("Indexed %d documents from %s\n", count, path)
	return nil
}
