package policies

import (
	"context"
	"encoding/json"
)

type NotificationType string

const (
	NotifyNewMessage   NotificationType = "NEW_MESSAGE"
	NotifyOfferChanged NotificationType = "OFFER_CHANGED"
)

type Notification struct {
	Type           NotificationType `json:"type"`
	ConversationID string           `json:"conversation_id"`
	ActorID        string           `json:"actor_id"`
	RecipientID    string           `json:"recipient_id"`
	// Key deduplicates deliveries of the same notification.
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Dispatcher delivers notifications at least once.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}
