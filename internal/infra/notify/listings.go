package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"bazaar/internal/app/policies"
)

const DefaultListingStatusTopic = "listing.status.v1"

// ListingLookup reads listing data from the catalogue.
type ListingLookup interface {
	Listing(ctx context.Context, id string) (policies.ListingInfo, error)
}

// ListingStatus publishes reservation changes to the catalogue service and delegates lookups to
// Lookup. The catalogue owns the listing state, so nothing is updated locally.
type ListingStatus struct {
	Lookup    ListingLookup
	Publisher Publisher
	Topic     string
	Logger    *slog.Logger
	Now       func() time.Time
}

type listingStatusChange struct {
	ListingID string                 `json:"listing_id"`
	Status    policies.ListingStatus `json:"status"`
	BuyerID   string                 `json:"buyer_id,omitempty"`
	At        time.Time              `json:"at"`
}

func (l *ListingStatus) Listing(ctx context.Context, id string) (policies.ListingInfo, error) {
	return l.Lookup.Listing(ctx, id)
}

func (l *ListingStatus) NotifyReserved(ctx context.Context, listingID, buyerID string) error {
	return l.publish(ctx, listingStatusChange{ListingID: listingID, Status: policies.ListingReserved, BuyerID: buyerID})
}

func (l *ListingStatus) NotifyAvailable(ctx context.Context, listingID string) error {
	return l.publish(ctx, listingStatusChange{ListingID: listingID, Status: policies.ListingAvailable})
}

func (l *ListingStatus) publish(ctx context.Context, change listingStatusChange) error {
	change.At = time.Now().UTC()
	if l.Now != nil {
		change.At = l.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	topic := l.Topic
	if topic == "" {
		topic = DefaultListingStatusTopic
	}
	if err := l.Publisher.Publish(ctx, topic, change.ListingID, payload, map[string]string{"content-type": "application/json"}); err != nil {
		return err
	}
	if l.Logger != nil {
		l.Logger.Info("listing status published", "listing_id", change.ListingID, "status", change.Status)
	}
	return nil
}

var _ policies.ListingPort = (*ListingStatus)(nil)
