package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It is used when no Redis URL
// is configured; sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]memoryEntry
	revoked  map[string]time.Time
}

type memoryEntry struct {
	data      TokenData
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		sessions: map[string]memoryEntry{},
		revoked:  map[string]time.Time{},
	}
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash string, data TokenData, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = s.now().UTC()
	}
	s.sessions[tokenHash] = memoryEntry{data: data, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (TokenData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[tokenHash]
	if !ok {
		return TokenData{}, ErrSessionNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, tokenHash)
		return TokenData{}, ErrSessionNotFound
	}
	return entry.data, nil
}

func (s *MemoryStore) TakeRefreshSession(_ context.Context, tokenHash string) (TokenData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[tokenHash]
	if !ok {
		return TokenData{}, ErrSessionNotFound
	}
	delete(s.sessions, tokenHash)
	if !s.now().Before(entry.expiresAt) {
		return TokenData{}, ErrSessionNotFound
	}
	return entry.data, nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = expiresAt
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiresAt) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
