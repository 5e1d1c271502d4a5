package offers

import (
	"context"
	"log/slog"
	"time"

	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/outbox"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
)

// Deps holds what every offer command needs. Offer mutations commit in one unit; the
// offer-reference messages are appended afterwards so a rolled back transition never leaves a
// message behind.
type Deps struct {
	UoWFactory uow.UoWFactory
	Stream     *support.Stream
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (t *Deps) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

// load fetches the offer and its conversation and checks that actor may still write there.
func (t *Deps) load(unit *support.Unit, offerID offer.ID, actorID string) (*offer.Offer, *conversation.Conversation, error) {
	o, err := unit.Offers().ByID(unit.Ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if !o.IsParty(actorID) {
		return nil, nil, offer.ErrIllegalTransition
	}
	conv, err := unit.Conversations().ByID(unit.Ctx, o.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if err := support.CheckWritable(unit.Ctx, unit.Blocks(), conv, actorID); err != nil {
		return nil, nil, err
	}
	return o, conv, nil
}

// commit saves the offers with their events and commits the unit.
func (t *Deps) commit(unit *support.Unit, offers ...*offer.Offer) error {
	for _, o := range offers {
		if err := unit.Offers().Save(unit.Ctx, o); err != nil {
			return err
		}
		if err := outbox.RecordDomainEvents(unit.Ctx, t.Outbox, t.Encoder, o.PullEvents()); err != nil {
			return err
		}
	}
	return unit.Commit()
}

// announce appends the offer-reference message for o's current status. The message id is derived
// from offer and status, so a transition is announced once.
func (t *Deps) announce(ctx context.Context, conv *conversation.Conversation, o *offer.Offer, actorID string) {
	ref := message.OfferRef{OfferID: string(o.ID), ListingID: o.ListingID, Price: o.Price, Status: string(o.Status)}
	if _, _, err := t.Stream.Record(ctx, conv, actorID, ref, string(o.ID)+":"+string(o.Status)); err != nil && t.Logger != nil {
		t.Logger.Warn("offer reference message not appended", "offer_id", o.ID, "status", o.Status, "error", err)
	}
}
