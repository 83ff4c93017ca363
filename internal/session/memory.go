package session

import (
	"context"
	"sync"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
)

// MemoryStore is an in-process Store for tests and local development. It
// honors the sliding TTL by tracking per-session deadlines.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]models.Session
	expiry   map[string]time.Time
}

// NewMemoryStore creates an empty in-process session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]models.Session),
		expiry:   make(map[string]time.Time),
	}
}

// Save upserts the session and refreshes its TTL.
func (s *MemoryStore) Save(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	s.expiry[sess.ID] = time.Now().Add(s.ttl)
	return nil
}

// Get fetches a session by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || time.Now().After(s.expiry[id]) {
		delete(s.sessions, id)
		delete(s.expiry, id)
		return nil, models.ErrSessionNotFound
	}
	copied := sess
	return &copied, nil
}

// Touch refreshes the TTL without mutating state.
func (s *MemoryStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		s.expiry[id] = time.Now().Add(s.ttl)
	}
	return nil
}

// Delete removes the session.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.expiry, id)
	return nil
}
