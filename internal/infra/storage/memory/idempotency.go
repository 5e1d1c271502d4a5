package memory

import (
	"context"
	"sync"
	"time"

	"bazaar/internal/app/middleware"
)

// IdempotencyStore keeps outcomes in memory. The first outcome saved for a key wins until it
// expires; expired records are dropped lazily on Save.
type IdempotencyStore struct {
	mu    sync.Mutex
	items map[string]middleware.IdempotencyRecord
	TTL   time.Duration
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{items: make(map[string]middleware.IdempotencyRecord), TTL: ttl}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	if !ok || s.expired(rec, time.Now()) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.items {
		if s.expired(r, now) {
			delete(s.items, k)
		}
	}
	if _, taken := s.items[rec.Key]; !taken {
		s.items[rec.Key] = rec
	}
	return nil
}

func (s *IdempotencyStore) expired(rec middleware.IdempotencyRecord, now time.Time) bool {
	return s.TTL > 0 && now.Sub(rec.OccurredAt) > s.TTL
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
