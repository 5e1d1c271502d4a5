package memory

import (
	"context"
	"sync"
	"time"

	"bazaar/internal/app/policies"
)

// Clock hands out strictly increasing millisecond timestamps per conversation.
type Clock struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewClock() *Clock {
	return &Clock{last: make(map[string]time.Time)}
}

func (c *Clock) Next(ctx context.Context, conversationID string, now time.Time) (time.Time, error) {
	at := now.UTC().Truncate(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[conversationID]; ok && !at.After(last) {
		at = last.Add(time.Millisecond)
	}
	c.last[conversationID] = at
	return at, nil
}

var _ policies.MessageClock = (*Clock)(nil)
