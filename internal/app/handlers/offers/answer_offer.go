package offers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/shared/money"
)

const (
	AcceptOfferKey  = "offers.accept"
	RejectOfferKey  = "offers.reject"
	CounterOfferKey = "offers.counter"
)

type AcceptOfferCommand struct {
	Actor   identity.Principal
	OfferID string
}

func (c AcceptOfferCommand) Key() string                         { return AcceptOfferKey }
func (c AcceptOfferCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c AcceptOfferCommand) ManagesUnits() bool                  { return true }

type RejectOfferCommand struct {
	Actor   identity.Principal
	OfferID string
}

func (c RejectOfferCommand) Key() string                         { return RejectOfferKey }
func (c RejectOfferCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c RejectOfferCommand) ManagesUnits() bool                  { return true }

// AnswerOfferHandler accepts or rejects a pending offer on behalf of its recipient. When the
// offer was answered concurrently the version guard fails and the caller gets a stale-state error.
type AnswerOfferHandler struct {
	Deps
}

func (h *AnswerOfferHandler) Accept(ctx context.Context, cmd AcceptOfferCommand) (dto.Offer, error) {
	return h.answer(ctx, cmd.Actor.UserID, cmd.OfferID, (*offer.Offer).Accept)
}

func (h *AnswerOfferHandler) Reject(ctx context.Context, cmd RejectOfferCommand) (dto.Offer, error) {
	return h.answer(ctx, cmd.Actor.UserID, cmd.OfferID, (*offer.Offer).Reject)
}

func (h *AnswerOfferHandler) answer(ctx context.Context, actorID, offerID string, apply func(*offer.Offer, string, time.Time) error) (dto.Offer, error) {
	unit, err := support.BeginUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.Offer{}, err
	}
	defer unit.Close()

	o, conv, err := h.load(unit, offer.ID(strings.TrimSpace(offerID)), actorID)
	if err != nil {
		return dto.Offer{}, err
	}
	if err := apply(o, actorID, h.now()); err != nil {
		return dto.Offer{}, err
	}
	if err := h.commit(unit, o); err != nil {
		return dto.Offer{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("offer answered", "offer_id", o.ID, "status", o.Status, "actor_id", actorID, "price", o.Price.String())
	}
	h.announce(ctx, conv, o, actorID)
	return dto.MapOffer(o), nil
}

// CounterOfferCommand replaces a pending offer by a new one with the actor's price.
type CounterOfferCommand struct {
	Actor    identity.Principal
	OfferID  string
	Amount   int64
	Currency string
	Note     string
}

func (c CounterOfferCommand) Key() string                         { return CounterOfferKey }
func (c CounterOfferCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c CounterOfferCommand) ManagesUnits() bool                  { return true }

type CounterOfferHandler struct {
	Deps
	NewID func() string
}

func (h *CounterOfferHandler) Handle(ctx context.Context, cmd CounterOfferCommand) (dto.CounterResult, error) {
	unit, err := support.BeginUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.CounterResult{}, err
	}
	defer unit.Close()

	original, conv, err := h.load(unit, offer.ID(strings.TrimSpace(cmd.OfferID)), cmd.Actor.UserID)
	if err != nil {
		return dto.CounterResult{}, err
	}
	currency := cmd.Currency
	if strings.TrimSpace(currency) == "" {
		currency = original.Price.Currency
	}
	// Counter validates the amount after the status check.
	price := money.Money{Amount: cmd.Amount, Currency: strings.ToUpper(strings.TrimSpace(currency))}
	next, err := original.Counter(cmd.Actor.UserID, offer.ID(h.newID()), price, cmd.Note, h.now())
	if err != nil {
		return dto.CounterResult{}, err
	}
	if err := h.commit(unit, original, next); err != nil {
		return dto.CounterResult{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("offer countered", "offer_id", original.ID, "counter_offer_id", next.ID, "actor_id", cmd.Actor.UserID, "price", next.Price.String())
	}
	h.announce(ctx, conv, next, cmd.Actor.UserID)
	return dto.CounterResult{Original: dto.MapOffer(original), Counter: dto.MapOffer(next)}, nil
}

func (h *CounterOfferHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

var _ commands.Handler[CounterOfferCommand, dto.CounterResult] = (*CounterOfferHandler)(nil)
