package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store maps session IDs to sessions. Safe for concurrent use.
//
// Reads return snapshots: callers never share pointers into store-owned
// state, so a concurrent mutation cannot race a returned Session.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	locks    map[uuid.UUID]*sync.Mutex
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// Create stores a new session for the given profile and returns a snapshot.
// The session ID is generated here and never reused.
func (s *Store) Create(profile Profile) Session {
	now := time.Now()
	sess := &Session{
		ID:        uuid.New(),
		Profile:   cloneProfile(profile),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.locks[sess.ID] = &sync.Mutex{}
	s.mu.Unlock()

	return snapshot(sess)
}

// Get returns a snapshot of the session, or ErrNotFound.
func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return snapshot(sess), nil
}

// SetLastRecipe overwrites the session's last-recipe slot.
func (s *Store) SetLastRecipe(id uuid.UUID, draft RecipeDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	d := draft
	sess.LastRecipe = &d
	sess.UpdatedAt = time.Now()
	return nil
}

// MarkFinalized flips is_finalized to true. The flag is sticky: it is never
// reset, and marking an already-finalized session is a no-op.
func (s *Store) MarkFinalized(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.IsFinalized = true
	sess.UpdatedAt = time.Now()
	return nil
}

// Delete removes the session. Reports whether it existed.
func (s *Store) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	delete(s.locks, id)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// TurnLock returns the per-session mutex used to serialize turns.
// The lock survives until the session is deleted; callers holding a lock for
// a just-deleted session simply find the session gone on re-lookup.
func (s *Store) TurnLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// snapshot copies a session so callers cannot mutate store state.
func snapshot(sess *Session) Session {
	cp := *sess
	cp.Profile = cloneProfile(sess.Profile)
	if sess.LastRecipe != nil {
		d := *sess.LastRecipe
		cp.LastRecipe = &d
	}
	return cp
}

func cloneProfile(p Profile) Profile {
	cp := p
	if p.Allergies != nil {
		cp.Allergies = make([]string, len(p.Allergies))
		copy(cp.Allergies, p.Allergies)
	}
	return cp
}
