package session

import (
	"sync"

	"github.com/google/uuid"
)

// FinalStore maps session IDs to finalized recipes (1:1). Safe for
// concurrent use.
//
// A finalized recipe is written exactly once: if a record already exists for
// the session, Put keeps the existing record and reports false. Re-running
// finalize therefore returns the original confirmation, never a rewrite.
type FinalStore struct {
	mu      sync.RWMutex
	recipes map[uuid.UUID]FinalRecipe
}

// NewFinalStore creates an empty finalization store.
func NewFinalStore() *FinalStore {
	return &FinalStore{recipes: make(map[uuid.UUID]FinalRecipe)}
}

// Put stores the finalized recipe unless one already exists.
// Returns the stored record and whether this call created it.
func (s *FinalStore) Put(id uuid.UUID, recipe FinalRecipe) (FinalRecipe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.recipes[id]; ok {
		return existing, false
	}
	s.recipes[id] = recipe
	return recipe, true
}

// Get returns the finalized recipe, or ErrNotFound.
func (s *FinalStore) Get(id uuid.UUID) (FinalRecipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipe, ok := s.recipes[id]
	if !ok {
		return FinalRecipe{}, ErrNotFound
	}
	return recipe, nil
}

// Delete removes the finalized recipe, if any.
func (s *FinalStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recipes, id)
}
