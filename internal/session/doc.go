// Package session holds the per-conversation state for the recipe chat:
// session profiles, conversation histories, and finalized recipes.
//
// All three stores are process-lifetime in-memory maps. Nothing survives a
// restart; that is a deliberate simplicity choice of this service.
//
// # Concurrency
//
// Every store is safe for concurrent use across sessions. Within a single
// session the chat orchestrator additionally serializes turns via
// [Store.TurnLock] so that history ordering and last-recipe overwrite
// semantics stay deterministic under concurrent requests.
package session
