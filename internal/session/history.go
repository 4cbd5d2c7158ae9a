package session

import (
	"sync"

	"github.com/google/uuid"
)

// History is one session's ordered, append-only conversation log.
//
// The zero value is not useful; use NewHistory.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{messages: make([]Message, 0)}
}

// Add appends one completed exchange: the user message followed by the
// assistant response. Entries are never reordered or mutated afterwards.
func (h *History) Add(userInput, assistantResponse string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		Message{Role: RoleUser, Content: userInput},
		Message{Role: RoleAssistant, Content: assistantResponse},
	)
}

// Messages returns a copy of all messages in chronological order.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// HistoryStore maps session IDs to histories, creating them lazily on first
// access. Safe for concurrent use.
type HistoryStore struct {
	mu        sync.Mutex
	histories map[uuid.UUID]*History
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{histories: make(map[uuid.UUID]*History)}
}

// Get returns the session's history, creating it on first access.
// Exactly one history ever exists per session ID.
func (s *HistoryStore) Get(id uuid.UUID) *History {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[id]
	if !ok {
		h = NewHistory()
		s.histories[id] = h
	}
	return h
}

// Delete removes the session's history, if any.
func (s *HistoryStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, id)
}
