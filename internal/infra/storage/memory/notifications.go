package memory

import (
	"context"
	"log/slog"
	"sync"

	"bazaar/internal/app/policies"
)

// Notifications records dispatched notifications, dropping repeats of the same key.
type Notifications struct {
	mu     sync.Mutex
	keys   map[string]bool
	items  []policies.Notification
	Logger *slog.Logger
}

func NewNotifications(logger *slog.Logger) *Notifications {
	return &Notifications{keys: make(map[string]bool), Logger: logger}
}

func (n *Notifications) Dispatch(ctx context.Context, note policies.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.keys[note.Key] {
		return nil
	}
	n.keys[note.Key] = true
	n.items = append(n.items, note)
	if n.Logger != nil {
		n.Logger.Info("notification", "type", note.Type, "recipient_id", note.RecipientID, "conversation_id", note.ConversationID, "key", note.Key)
	}
	return nil
}

// For returns the notifications addressed to recipientID in dispatch order.
func (n *Notifications) For(recipientID string) []policies.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []policies.Notification
	for _, item := range n.items {
		if item.RecipientID == recipientID {
			out = append(out, item)
		}
	}
	return out
}

var _ policies.Dispatcher = (*Notifications)(nil)
