package dto

import (
	"time"

	"bazaar/internal/domain/conversation"
)

type LastMessage struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Kind     string    `json:"kind"`
	Preview  string    `json:"preview"`
	At       time.Time `json:"at"`
}

// Conversation is the viewer-specific projection of a conversation.
type Conversation struct {
	ID             string       `json:"id"`
	Participants   []string     `json:"participants"`
	CounterpartID  string       `json:"counterpart_id"`
	ListingIDs     []string     `json:"listing_ids"`
	Title          string       `json:"title"`
	LastMessage    *LastMessage `json:"last_message,omitempty"`
	MessageCount   int          `json:"message_count"`
	UnreadCount    int          `json:"unread_count"`
	LastReadAt     *time.Time   `json:"last_read_at,omitempty"`
	BlockedByMe    bool         `json:"blocked_by_me"`
	BlockedByOther bool         `json:"blocked_by_other"`
	Active         bool         `json:"active"`
	ReportCount    int          `json:"report_count,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	Version        int64        `json:"version"`
}

type ConversationList struct {
	Items      []Conversation `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// MapConversation projects c for viewerID. title resolves listing titles and may be nil.
func MapConversation(c *conversation.Conversation, viewerID string, title func(string) string) Conversation {
	counterpart, _ := c.Counterpart(viewerID)
	out := Conversation{
		ID:             string(c.ID),
		Participants:   []string{c.Participants[0], c.Participants[1]},
		CounterpartID:  counterpart,
		ListingIDs:     append([]string(nil), c.ListingIDs...),
		Title:          c.DisplayTitle(title),
		MessageCount:   c.MessageCount,
		UnreadCount:    c.UnreadFor(viewerID),
		BlockedByMe:    c.BlockedBy(viewerID),
		BlockedByOther: counterpart != "" && c.BlockedBy(counterpart),
		Active:         c.Active,
		ReportCount:    c.ReportCount,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		LastActivityAt: c.LastActivity(),
		Version:        c.Version,
	}
	if marker := c.ReadMarker(viewerID); !marker.IsZero() {
		out.LastReadAt = &marker
	}
	if lm := c.LastMessage; lm != nil {
		out.LastMessage = &LastMessage{ID: lm.MessageID, SenderID: lm.SenderID, Kind: lm.Kind, Preview: lm.Preview, At: lm.At}
	}
	return out
}
