package reactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"bazaar/internal/app/outbox"
	"bazaar/internal/app/policies"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
)

// Inbox remembers which events a consumer already handled. Forget undoes Seen so a failed
// reaction is attempted again on redelivery.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

var ErrReactorNotConfigured = errors.New("reactions: dispatcher required")

// Reactor turns committed domain events into notifications and listing status updates.
type Reactor struct {
	Dispatcher policies.Dispatcher
	Listings   policies.ListingPort
	Inbox      Inbox
	Logger     *slog.Logger
}

func (r *Reactor) Deliver(ctx context.Context, record outbox.EventRecord) error {
	if r.Dispatcher == nil {
		return ErrReactorNotConfigured
	}
	if r.Inbox != nil && record.ID != "" {
		seen, err := r.Inbox.Seen(ctx, record.ID)
		if err != nil {
			return err
		}
		if seen {
			r.log().Debug("event already handled", "event_id", record.ID, "event", record.Name)
			return nil
		}
	}
	if err := r.react(ctx, record); err != nil {
		if r.Inbox != nil && record.ID != "" {
			if forgetErr := r.Inbox.Forget(ctx, record.ID); forgetErr != nil {
				err = errors.Join(err, forgetErr)
			}
		}
		r.log().Warn("reaction failed", "event_id", record.ID, "event", record.Name, "error", err)
		return err
	}
	return nil
}

func (r *Reactor) react(ctx context.Context, record outbox.EventRecord) error {
	switch record.Name {
	case message.Sent{}.EventName():
		var ev message.Sent
		if err := outbox.Decode(record, &ev); err != nil {
			return fmt.Errorf("reactions: decode %s: %w", record.Name, err)
		}
		return r.messageSent(ctx, ev)
	case offer.Created{}.EventName(), offer.Accepted{}.EventName(), offer.Rejected{}.EventName(), offer.Countered{}.EventName():
		var snap offer.Snapshot
		if err := outbox.Decode(record, &snap); err != nil {
			return fmt.Errorf("reactions: decode %s: %w", record.Name, err)
		}
		return r.offerChanged(ctx, snap)
	case conversation.Deactivated{}.EventName():
		var ev conversation.Deactivated
		if err := outbox.Decode(record, &ev); err != nil {
			return fmt.Errorf("reactions: decode %s: %w", record.Name, err)
		}
		return r.released(ctx, ev)
	default:
		return nil
	}
}

// messageSent notifies the receiver. Offer reference messages are covered by OFFER_CHANGED.
func (r *Reactor) messageSent(ctx context.Context, ev message.Sent) error {
	if ev.Kind == message.KindOffer {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"message_id": ev.MessageID,
		"kind":       ev.Kind,
		"preview":    ev.Preview,
		"at":         ev.At,
	})
	if err != nil {
		return err
	}
	return r.Dispatcher.Dispatch(ctx, policies.Notification{
		Type:           policies.NotifyNewMessage,
		ConversationID: string(ev.ConversationID),
		ActorID:        ev.SenderID,
		RecipientID:    ev.ReceiverID,
		Key:            fmt.Sprintf("%s:%s", policies.NotifyNewMessage, ev.MessageID),
		Payload:        payload,
	})
}

func (r *Reactor) offerChanged(ctx context.Context, snap offer.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := r.Dispatcher.Dispatch(ctx, policies.Notification{
		Type:           policies.NotifyOfferChanged,
		ConversationID: string(snap.ConversationID),
		ActorID:        snap.ActorID,
		RecipientID:    snap.CounterpartID,
		Key:            fmt.Sprintf("%s:%s:%s", policies.NotifyOfferChanged, snap.OfferID, snap.Status),
		Payload:        payload,
	}); err != nil {
		return err
	}
	if snap.Status != offer.StatusAccepted || r.Listings == nil {
		return nil
	}
	if err := r.Listings.NotifyReserved(ctx, snap.ListingID, snap.BuyerID); err != nil {
		// Listing updates are fire-and-forget; the notification already went out.
		r.log().Warn("listing reservation notify failed", "listing_id", snap.ListingID, "offer_id", snap.OfferID, "error", err)
	}
	return nil
}

func (r *Reactor) released(ctx context.Context, ev conversation.Deactivated) error {
	if r.Listings == nil {
		return nil
	}
	for _, listingID := range ev.ReleasedListings {
		if err := r.Listings.NotifyAvailable(ctx, listingID); err != nil {
			r.log().Warn("listing release notify failed", "listing_id", listingID, "conversation_id", ev.ConversationID, "error", err)
		}
	}
	return nil
}

func (r *Reactor) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

var _ outbox.Sink = (*Reactor)(nil)
