package offer

import (
	"time"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/shared/money"
)

// Snapshot is the offer state carried by every offer event. CounterpartID is the party that did not
// act and should be notified.
type Snapshot struct {
	OfferID        ID              `json:"offer_id"`
	ConversationID conversation.ID `json:"conversation_id"`
	ListingID      string          `json:"listing_id"`
	BuyerID        string          `json:"buyer_id"`
	SellerID       string          `json:"seller_id"`
	ActorID        string          `json:"actor_id"`
	CounterpartID  string          `json:"counterpart_id"`
	Status         Status          `json:"status"`
	Price          money.Money     `json:"price"`
	At             time.Time       `json:"at"`
}

func (s Snapshot) AggregateID() string   { return string(s.OfferID) }
func (s Snapshot) OccurredAt() time.Time { return s.At }
func (s Snapshot) ThreadID() string      { return string(s.ConversationID) }

type Created struct {
	Snapshot
	CounterOfferID ID `json:"counter_offer_id,omitempty"`
}

func (Created) EventName() string { return "offer.created" }

type Accepted struct {
	Snapshot
}

func (Accepted) EventName() string { return "offer.accepted" }

type Rejected struct {
	Snapshot
}

func (Rejected) EventName() string { return "offer.rejected" }

type Countered struct {
	Snapshot
	ReplacementID ID `json:"replacement_id"`
}

func (Countered) EventName() string { return "offer.countered" }
