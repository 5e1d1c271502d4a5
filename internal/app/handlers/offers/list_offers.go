package offers

import (
	"context"
	"sort"
	"strings"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/offer"
)

const (
	ListOffersKey = "offers.list"
	GetOfferKey   = "offers.get"
)

// ListOffersQuery returns every offer of a conversation, oldest first, so counter chains read
// in order.
type ListOffersQuery struct {
	Actor          identity.Principal
	ConversationID string
}

func (q ListOffersQuery) Key() string                         { return ListOffersKey }
func (q ListOffersQuery) ActingPrincipal() identity.Principal { return q.Actor }

type GetOfferQuery struct {
	Actor   identity.Principal
	OfferID string
}

func (q GetOfferQuery) Key() string                         { return GetOfferKey }
func (q GetOfferQuery) ActingPrincipal() identity.Principal { return q.Actor }

type QueryHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *QueryHandler) List(ctx context.Context, q ListOffersQuery) (dto.OfferList, error) {
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.OfferList{}, err
	}
	defer unit.Close()

	conv, err := unit.Conversations().ByID(unit.Ctx, conversation.ID(strings.TrimSpace(q.ConversationID)))
	if err != nil {
		return dto.OfferList{}, err
	}
	if !conv.HasParticipant(q.Actor.UserID) && !q.Actor.CanModerate() {
		return dto.OfferList{}, conversation.ErrNotParticipant
	}
	items, err := unit.Offers().ListByConversation(unit.Ctx, conv.ID)
	if err != nil {
		return dto.OfferList{}, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	out := dto.OfferList{Items: make([]dto.Offer, 0, len(items))}
	for _, o := range items {
		out.Items = append(out.Items, dto.MapOffer(o))
	}
	return out, nil
}

func (h *QueryHandler) Get(ctx context.Context, q GetOfferQuery) (dto.Offer, error) {
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Offer{}, err
	}
	defer unit.Close()
	o, err := unit.Offers().ByID(unit.Ctx, offer.ID(strings.TrimSpace(q.OfferID)))
	if err != nil {
		return dto.Offer{}, err
	}
	if !o.IsParty(q.Actor.UserID) && !q.Actor.CanModerate() {
		return dto.Offer{}, offer.ErrNotFound
	}
	return dto.MapOffer(o), nil
}
