package conversation

import "time"

type Started struct {
	ConversationID ID        `json:"conversation_id"`
	BuyerID        string    `json:"buyer_id"`
	SellerID       string    `json:"seller_id"`
	ListingID      string    `json:"listing_id"`
	At             time.Time `json:"at"`
}

func (e Started) EventName() string     { return "conversation.started" }
func (e Started) AggregateID() string   { return string(e.ConversationID) }
func (e Started) OccurredAt() time.Time { return e.At }
func (e Started) ThreadID() string      { return string(e.ConversationID) }

type ListingAttached struct {
	ConversationID ID        `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	At             time.Time `json:"at"`
}

func (e ListingAttached) EventName() string     { return "conversation.listing_attached" }
func (e ListingAttached) AggregateID() string   { return string(e.ConversationID) }
func (e ListingAttached) OccurredAt() time.Time { return e.At }
func (e ListingAttached) ThreadID() string      { return string(e.ConversationID) }

type Deactivated struct {
	ConversationID   ID        `json:"conversation_id"`
	Reason           string    `json:"reason"`
	ReleasedListings []string  `json:"released_listings,omitempty"`
	At               time.Time `json:"at"`
}

func (e Deactivated) EventName() string     { return "conversation.deactivated" }
func (e Deactivated) AggregateID() string   { return string(e.ConversationID) }
func (e Deactivated) OccurredAt() time.Time { return e.At }
func (e Deactivated) ThreadID() string      { return string(e.ConversationID) }
