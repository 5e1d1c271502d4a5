package dto

import (
	"time"

	"bazaar/internal/domain/message"
	"bazaar/internal/domain/shared/money"
)

type OfferRef struct {
	OfferID      string      `json:"offer_id"`
	ListingID    string      `json:"listing_id"`
	Price        money.Money `json:"price"`
	PriceDisplay string      `json:"price_display"`
	Status       string      `json:"status"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Kind           string    `json:"kind"`
	Text           string    `json:"text,omitempty"`
	ImageRef       string    `json:"image_ref,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	Offer          *OfferRef `json:"offer,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

type MessageList struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// MapMessage converts a stored message; receiverMarker is the receiver's last-read timestamp.
func MapMessage(m *message.Message, receiverMarker time.Time) Message {
	out := Message{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Kind:           string(m.Body.Kind()),
		CreatedAt:      m.CreatedAt,
		Read:           m.ReadBy(receiverMarker),
	}
	switch b := m.Body.(type) {
	case message.Text:
		out.Text = b.Text
	case message.Image:
		out.ImageRef = b.Ref
		out.Text = b.Caption
	case message.OfferRef:
		out.Offer = &OfferRef{OfferID: b.OfferID, ListingID: b.ListingID, Price: b.Price, PriceDisplay: b.Price.String(), Status: b.Status}
	}
	return out
}
