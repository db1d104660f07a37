package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps profiles in process memory for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
}

func (s *MemoryStore) Lookup(_ context.Context, subject string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p *Profile) (*Profile, bool, error) {
	if p == nil || p.Subject == "" {
		return nil, false, ErrInvalidProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[p.Subject]; ok {
		return existing, false, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.profiles[p.Subject] = p
	return p, true, nil
}

// Len reports the number of registered profiles.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
