package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/middleware"
	"bazaar/internal/app/outbox"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/shared/money"
)

const CreateOfferKey = "offers.create"

// CreateOfferCommand proposes a price for a listing of the conversation. Either party may
// propose; the other one answers.
type CreateOfferCommand struct {
	Actor           identity.Principal
	ConversationID  string
	ListingID       string
	Amount          int64
	Currency        string
	Note            string
	IdempotencyKeyV string
}

func (c CreateOfferCommand) Key() string                         { return CreateOfferKey }
func (c CreateOfferCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c CreateOfferCommand) ManagesUnits() bool                  { return true }
func (c CreateOfferCommand) ResultPrototype() any                { return &dto.Offer{} }
func (c CreateOfferCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return c.Actor.UserID + ":" + c.IdempotencyKeyV
}

type CreateOfferHandler struct {
	Deps
	Listings policies.ListingPort
}

func (h *CreateOfferHandler) Handle(ctx context.Context, cmd CreateOfferCommand) (*dto.Offer, error) {
	if cmd.Amount <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", offer.ErrInvalidOffer)
	}
	listingID := strings.TrimSpace(cmd.ListingID)
	listing, err := h.Listings.Listing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status == policies.ListingSold {
		return nil, fmt.Errorf("%w: listing is sold", offer.ErrInvalidOffer)
	}
	currency := cmd.Currency
	if strings.TrimSpace(currency) == "" {
		currency = listing.Price.Currency
	}
	price, err := money.New(cmd.Amount, currency)
	if err != nil {
		return nil, errors.Join(offer.ErrInvalidOffer, err)
	}

	unit, err := support.BeginUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	conv, err := unit.Conversations().ByID(unit.Ctx, conversation.ID(strings.TrimSpace(cmd.ConversationID)))
	if err != nil {
		return nil, err
	}
	if err := support.CheckWritable(unit.Ctx, unit.Blocks(), conv, cmd.Actor.UserID); err != nil {
		return nil, err
	}
	if !conv.HasParticipant(listing.SellerID) {
		return nil, fmt.Errorf("%w: listing seller is not part of the conversation", offer.ErrInvalidOffer)
	}
	buyerID, _ := conv.Counterpart(listing.SellerID)
	now := h.now()

	existing, err := unit.Offers().PendingFor(unit.Ctx, conv.ID, listingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: offer %s is still pending", offer.ErrInvalidOffer, existing.ID)
	}

	o, err := offer.New(offer.CreateParams{
		ID:             offer.ID(uuid.NewString()),
		ConversationID: conv.ID,
		ListingID:      listingID,
		BuyerID:        buyerID,
		SellerID:       listing.SellerID,
		ProposerID:     cmd.Actor.UserID,
		ListingPrice:   listing.Price,
		Price:          price,
		Note:           cmd.Note,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	if attached, err := conv.AttachListing(listingID, now); err != nil {
		return nil, err
	} else if attached {
		if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
			return nil, err
		}
		if err := outbox.RecordDomainEvents(unit.Ctx, h.Outbox, h.Encoder, conv.PullEvents()); err != nil {
			return nil, err
		}
	}
	if err := h.commit(unit, o); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("offer created", "offer_id", o.ID, "conversation_id", conv.ID, "listing_id", listingID, "proposer_id", o.ProposerID, "price", o.Price.String())
	}
	h.announce(ctx, conv, o, cmd.Actor.UserID)
	out := dto.MapOffer(o)
	return &out, nil
}

var (
	_ commands.Handler[CreateOfferCommand, *dto.Offer] = (*CreateOfferHandler)(nil)
	_ middleware.IdempotentCommand                     = CreateOfferCommand{}
)
