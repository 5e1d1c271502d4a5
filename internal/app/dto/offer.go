package dto

import (
	"time"

	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/shared/money"
)

type Offer struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	ListingID      string      `json:"listing_id"`
	BuyerID        string      `json:"buyer_id"`
	SellerID       string      `json:"seller_id"`
	ProposerID     string      `json:"proposer_id"`
	RecipientID    string      `json:"recipient_id"`
	ListingPrice   money.Money `json:"listing_price"`
	Price          money.Money `json:"price"`
	PriceDisplay   string      `json:"price_display"`
	Note           string      `json:"note,omitempty"`
	Status         string      `json:"status"`
	CounterOfferID string      `json:"counter_offer_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Version        int64       `json:"version"`
}

type OfferList struct {
	Items []Offer `json:"items"`
}

// CounterResult carries both sides of a counter: the original, now COUNTERED, and its replacement.
type CounterResult struct {
	Original Offer `json:"original"`
	Counter  Offer `json:"counter"`
}

func MapOffer(o *offer.Offer) Offer {
	return Offer{
		ID:             string(o.ID),
		ConversationID: string(o.ConversationID),
		ListingID:      o.ListingID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ProposerID:     o.ProposerID,
		RecipientID:    o.Recipient(),
		ListingPrice:   o.ListingPrice,
		Price:          o.Price,
		PriceDisplay:   o.Price.String(),
		Note:           o.Note,
		Status:         string(o.Status),
		CounterOfferID: string(o.CounterOfferID),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Version:        o.Version,
	}
}
