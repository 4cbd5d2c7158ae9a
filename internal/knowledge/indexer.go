package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// corpusRecord is one line of a JSONL corpus file.
type corpusRecord struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// DocumentAdder accepts documents into the corpus. Satisfied by Store.
type DocumentAdder interface {
	Add(ctx context.Context, doc Document) error
}

// Indexer loads reference recipes from a JSONL stream into the corpus store.
type Indexer struct {
	store  DocumentAdder
	logger *slog.Logger
}

// NewIndexer creates an indexer writing into store.
func NewIndexer(store DocumentAdder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, logger: logger}
}

// IndexJSONL reads newline-delimited JSON records from r and adds each to
// the corpus. Records without an id get a line-number-derived one. Blank
// lines are skipped; a malformed line or empty content aborts the run so a
// broken corpus file is caught immediately rather than half-indexed.
// Returns the number of documents indexed.
func (ix *Indexer) IndexJSONL(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	// Recipe documents can be long; the default 64KB token limit is too small.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	indexed := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec corpusRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return indexed, fmt.Errorf("line %d: parsing record: %w", lineNo, err)
		}
		if strings.TrimSpace(rec.Content) == "" {
			return indexed, fmt.Errorf("line %d: record has no content", lineNo)
		}
		if rec.ID == "" {
			rec.ID = "recipe-" + strconv.Itoa(lineNo)
		}

		if err := ix.store.Add(ctx, Document{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata,
		}); err != nil {
			return indexed, fmt.Errorf("line %d: %w", lineNo, err)
		}
		indexed++

		if indexed%100 == 0 {
			ix.logger.Info("indexing progress", "documents", indexed)
		}
	}
	if err := scanner.Err(); err != nil {
		return indexed, fmt.Errorf("reading corpus: %w", err)
	}

	ix.logger.Info("indexing complete", "documents", indexed)
	return indexed, nil
}
