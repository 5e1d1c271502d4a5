package conversations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/middleware"
	"bazaar/internal/app/outbox"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/shared/errs"
)

const CreateConversationKey = "conversations.create"

var (
	ErrOwnListing      = errs.New(errs.Validation, "conversations: cannot open a conversation about your own listing")
	ErrListingRequired = errs.New(errs.Validation, "conversations: listing_id required")
)

// CreateConversationCommand resolves the buyer/seller conversation for a listing, creating it on
// first contact, and optionally posts a first message.
type CreateConversationCommand struct {
	Actor           identity.Principal
	ListingID       string
	FirstMessage    string
	IdempotencyKeyV string
}

func (c CreateConversationCommand) Key() string                         { return CreateConversationKey }
func (c CreateConversationCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c CreateConversationCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return c.Actor.UserID + ":" + c.IdempotencyKeyV
}
func (c CreateConversationCommand) ResultPrototype() any { return &dto.Conversation{} }
func (c CreateConversationCommand) ManagesUnits() bool   { return true }

func (c CreateConversationCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return ErrListingRequired
	}
	return nil
}

type CreateConversationHandler struct {
	UoWFactory uow.UoWFactory
	Listings   policies.ListingPort
	Stream     *support.Stream
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *CreateConversationHandler) Handle(ctx context.Context, cmd CreateConversationCommand) (*dto.Conversation, error) {
	listingID := strings.TrimSpace(cmd.ListingID)
	listing, err := h.Listings.Listing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	buyerID, sellerID := cmd.Actor.UserID, listing.SellerID
	if buyerID == sellerID {
		return nil, ErrOwnListing
	}

	conv, created, attached, err := h.resolve(ctx, buyerID, sellerID, listingID)
	if err != nil {
		return nil, err
	}
	if created && h.Logger != nil {
		h.Logger.Info("conversation created", "conversation_id", conv.ID, "listing_id", listingID, "buyer_id", buyerID, "seller_id", sellerID)
	}

	// Reopening a conversation for a listing it already holds posts nothing.
	if text := strings.TrimSpace(cmd.FirstMessage); text != "" && (created || attached) {
		key := cmd.IdempotencyKeyV
		if key != "" {
			key = "first:" + key
		}
		if _, err := h.Stream.Append(ctx, support.AppendParams{ConversationID: conv.ID, SenderID: buyerID, Body: message.Text{Text: text}, Key: key}); err != nil {
			return nil, err
		}
		if refreshed, err := h.Stream.Refresh(ctx, conv.ID); err == nil && refreshed != nil {
			conv = refreshed
		}
	}
	out := dto.MapConversation(conv, buyerID, support.Titles(ctx, h.Listings))
	return &out, nil
}

// resolve finds the conversation of the unordered pair or creates it, and reports whether it
// was created or gained the listing. Two concurrent first contacts race on the pair key; the
// loser gets a stale-state error and may retry.
func (h *CreateConversationHandler) resolve(ctx context.Context, buyerID, sellerID, listingID string) (conv *conversation.Conversation, created, attached bool, err error) {
	unit, err := support.BeginUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, false, false, err
	}
	defer unit.Close()

	if err := block.CheckPair(unit.Ctx, unit.Blocks(), buyerID, sellerID); err != nil {
		return nil, false, false, err
	}
	now := h.now()
	conv, err = unit.Conversations().ByParticipants(unit.Ctx, buyerID, sellerID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		conv, err = conversation.New(conversation.CreateParams{
			ID:        conversation.ID(uuid.NewString()),
			BuyerID:   buyerID,
			SellerID:  sellerID,
			ListingID: listingID,
			CreatedAt: now,
		})
		if err != nil {
			return nil, false, false, err
		}
		created = true
	case err != nil:
		return nil, false, false, err
	default:
		if !conv.Active {
			return nil, false, false, conversation.ErrInactive
		}
		if attached, err = conv.AttachListing(listingID, now); err != nil {
			return nil, false, false, err
		}
		if !attached {
			return conv, false, false, nil
		}
	}

	if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
		return nil, false, false, err
	}
	if err := outbox.RecordDomainEvents(unit.Ctx, h.Outbox, h.Encoder, conv.PullEvents()); err != nil {
		return nil, false, false, err
	}
	if err := unit.Commit(); err != nil {
		return nil, false, false, err
	}
	return conv, created, attached, nil
}

func (h *CreateConversationHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var (
	_ commands.Handler[CreateConversationCommand, *dto.Conversation] = (*CreateConversationHandler)(nil)
	_ middleware.IdempotentCommand                                   = CreateConversationCommand{}
)
