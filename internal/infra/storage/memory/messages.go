package memory

import (
	"context"
	"time"

	"bazaar/internal/app/feed"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
)

// messageRepo writes straight to the store: appends are idempotent inserts and never roll back.
type messageRepo struct {
	s *Store
}

func (r messageRepo) Append(ctx context.Context, m *message.Message) (*message.Message, bool, error) {
	s := r.s
	s.mu.Lock()
	if existing, ok := s.messageIDs[m.ID]; ok {
		s.mu.Unlock()
		return cloneMessage(existing), false, nil
	}
	stored := cloneMessage(m)
	s.messageIDs[stored.ID] = stored
	s.messages[stored.ConversationID] = insertMessage(s.messages[stored.ConversationID], stored)
	s.mu.Unlock()

	s.notify(map[feed.Topic]struct{}{
		{Kind: feed.TopicConversation, ID: string(m.ConversationID)}: {},
	})
	return cloneMessage(stored), true, nil
}

// List pages backwards from page.Before, newest first.
func (r messageRepo) List(ctx context.Context, conversationID conversation.ID, page message.Page) ([]*message.Message, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.messages[conversationID]
	var out []*message.Message
	for i := len(stream) - 1; i >= 0; i-- {
		m := stream[i]
		if !page.Before.IsZero() && !m.CreatedAt.Before(page.Before) {
			continue
		}
		out = append(out, cloneMessage(m))
		if page.Limit > 0 && len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (r messageRepo) Since(ctx context.Context, conversationID conversation.ID, after time.Time) ([]*message.Message, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*message.Message
	for _, m := range s.messages[conversationID] {
		if m.CreatedAt.After(after) {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (r messageRepo) Count(ctx context.Context, conversationID conversation.ID) (int, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationID]), nil
}

func (r messageRepo) Last(ctx context.Context, conversationID conversation.ID) (*message.Message, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.messages[conversationID]
	if len(stream) == 0 {
		return nil, nil
	}
	return cloneMessage(stream[len(stream)-1]), nil
}
