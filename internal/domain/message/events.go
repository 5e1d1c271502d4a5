package message

import (
	"time"

	"bazaar/internal/domain/conversation"
)

// Sent is recorded once per stored message; retried appends do not record it again.
type Sent struct {
	MessageID      ID              `json:"message_id"`
	ConversationID conversation.ID `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	Kind           Kind            `json:"kind"`
	Preview        string          `json:"preview"`
	At             time.Time       `json:"at"`
}

func (e Sent) EventName() string     { return "message.sent" }
func (e Sent) AggregateID() string   { return string(e.ConversationID) }
func (e Sent) OccurredAt() time.Time { return e.At }
func (e Sent) ThreadID() string      { return string(e.ConversationID) }

func SentEvent(m *Message) Sent {
	return Sent{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Kind:           m.Body.Kind(),
		Preview:        m.Body.Preview(),
		At:             m.CreatedAt,
	}
}
