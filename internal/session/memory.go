package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Entries are stored serialized so
// callers never share mutable state, and expire after their TTL: lazily on
// Get and in bulk by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, data *Data, ttl time.Duration) (string, error) {
	id := uuid.New().String()
	data.CreatedAt = m.now().Unix()

	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{data: b, expiresAt: m.now().Add(ttl)}
	return id, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Data, error) {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if ok && !m.now().Before(entry.expiresAt) {
		delete(m.entries, id)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}

	var data Data
	if err := json.Unmarshal(entry.data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &data, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, data *Data, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok || !m.now().Before(entry.expiresAt) {
		delete(m.entries, id)
		return ErrSessionGone
	}
	m.entries[id] = memoryEntry{data: b, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[id]; ok {
		entry.expiresAt = m.now().Add(ttl)
		m.entries[id] = entry
	}
	return nil
}

// Sweep evicts every expired entry and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RunJanitor sweeps every interval until ctx is done.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Debug("Evicted expired sessions", zap.Int("count", n))
			}
		}
	}
}
