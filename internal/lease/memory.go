package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), now: now}
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	l := &Lease{Key: key, Token: uuid.NewString()}
	s.entries[key] = memoryEntry{token: l.Token, expires: now.Add(ttl)}
	return l, nil
}

// Release drops the claim if l still owns it. Releasing an expired or
// re-granted lease is a no-op.
func (s *MemoryStore) Release(_ context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[l.Key]; ok && e.token == l.Token {
		delete(s.entries, l.Key)
	}
	return nil
}
