package cache

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/garage/internal/models"
)

// MemorySessionStore keeps sessions in process memory, keyed by token hash.
// Suitable for single-instance deployments and tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.Session)}
}

func (s *MemorySessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	s.sessions[session.TokenHash] = *session
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Touch(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[tokenHash]; ok {
		session.LastActivityAt = at
		s.sessions[tokenHash] = session
	}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	delete(s.sessions, tokenHash)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) DeleteByUserID(_ context.Context, userID, exceptHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions {
		if session.UserID == userID && hash != exceptHash {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
