// Package knowledge is the recipe retrieval corpus: PostgreSQL + pgvector
// storage with embedding-based semantic search over reference recipes.
//
// The corpus is read-mostly. It is populated once by the indexer (see the
// index command) and queried on every chat turn to ground recipe generation
// in real reference material.
package knowledge
