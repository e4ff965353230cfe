package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-process demos.
type MemStore struct {
	mu    sync.Mutex
	users map[string]User // keyed by subject
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]User)}
}

// FindBySubject implements Store.
func (s *MemStore) FindBySubject(_ context.Context, subject string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[subject]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// Upsert implements Store. The mutex stands in for the database uniqueness
// constraint: concurrent upserts for one subject serialize into a single
// record.
func (s *MemStore) Upsert(_ context.Context, subject string, profile Profile) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if u, ok := s.users[subject]; ok {
		u.Name = profile.Name
		u.Email = profile.Email
		u.UpdatedAt = now
		s.users[subject] = u
		return u, nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return User{}, err
	}
	u := User{
		ID:        base64.RawURLEncoding.EncodeToString(b),
		Subject:   subject,
		Name:      profile.Name,
		Email:     profile.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[subject] = u
	return u, nil
}

var _ Store = (*MemStore)(nil)
