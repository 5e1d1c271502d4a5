package policies

import (
	"context"

	"bazaar/internal/domain/shared/money"
)

type ListingStatus string

const (
	ListingAvailable ListingStatus = "AVAILABLE"
	ListingReserved  ListingStatus = "RESERVED"
	ListingSold      ListingStatus = "SOLD"
)

type ListingInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Price    money.Money   `json:"price"`
	SellerID string        `json:"seller_id"`
	Status   ListingStatus `json:"status"`
}

// ListingPort is the catalogue collaborator. Notify calls are fire-and-forget.
type ListingPort interface {
	Listing(ctx context.Context, id string) (ListingInfo, error)
	NotifyReserved(ctx context.Context, listingID, buyerID string) error
	NotifyAvailable(ctx context.Context, listingID string) error
}
