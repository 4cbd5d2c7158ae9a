package knowledge

import "time"

// Document is one reference recipe in the corpus.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is a single search hit with its cosine similarity score (0-1).
type Result struct {
	ID         string
	Content    string
	Similarity float32
}
