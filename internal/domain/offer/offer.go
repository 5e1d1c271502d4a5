package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/events"
	"bazaar/internal/domain/shared/money"
)

var (
	ErrInvalidOffer      = errs.New(errs.Validation, "offer: invalid offer")
	ErrIllegalTransition = errs.New(errs.IllegalTransition, "offer: illegal transition")
	ErrNotFound          = errs.New(errs.NotFound, "offer: not found")
)

const MaxNoteLength = 500

type ID string

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCountered Status = "COUNTERED"
)

func (s Status) Terminal() bool {
	return s != StatusPending
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCountered:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidOffer, raw)
	}
}

// Offer is a price proposal about one listing. A counter-offer points back at the offer it
// replaces through CounterOfferID.
type Offer struct {
	ID             ID
	ConversationID conversation.ID
	ListingID      string
	BuyerID        string
	SellerID       string
	ProposerID     string
	ListingPrice   money.Money
	Price          money.Money
	Note           string
	Status         Status
	CounterOfferID ID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Offer, error)
	// PendingFor returns the pending offer for the listing in the conversation, or nil.
	PendingFor(ctx context.Context, conversationID conversation.ID, listingID string) (*Offer, error)
	ListByConversation(ctx context.Context, conversationID conversation.ID) ([]*Offer, error)
	Save(ctx context.Context, o *Offer) error
}

type CreateParams struct {
	ID             ID
	ConversationID conversation.ID
	ListingID      string
	BuyerID        string
	SellerID       string
	ProposerID     string
	ListingPrice   money.Money
	Price          money.Money
	Note           string
	CounterOfferID ID
	CreatedAt      time.Time
}

func New(params CreateParams) (*Offer, error) {
	if strings.TrimSpace(params.ListingID) == "" {
		return nil, fmt.Errorf("%w: listing id required", ErrInvalidOffer)
	}
	if params.BuyerID == "" || params.SellerID == "" || params.BuyerID == params.SellerID {
		return nil, fmt.Errorf("%w: buyer and seller must be distinct", ErrInvalidOffer)
	}
	if params.ProposerID != params.BuyerID && params.ProposerID != params.SellerID {
		return nil, ErrIllegalTransition
	}
	if !params.Price.Positive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOffer)
	}
	if len(params.Price.Currency) != 3 {
		return nil, fmt.Errorf("%w: currency required", ErrInvalidOffer)
	}
	if params.ListingPrice.Currency != "" {
		if err := params.Price.SameCurrency(params.ListingPrice); err != nil {
			return nil, errors.Join(ErrInvalidOffer, err)
		}
	}
	note := strings.TrimSpace(params.Note)
	if len([]rune(note)) > MaxNoteLength {
		return nil, fmt.Errorf("%w: note too long", ErrInvalidOffer)
	}
	now := params.CreatedAt.UTC()
	o := &Offer{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		ListingID:      strings.TrimSpace(params.ListingID),
		BuyerID:        params.BuyerID,
		SellerID:       params.SellerID,
		ProposerID:     params.ProposerID,
		ListingPrice:   params.ListingPrice,
		Price:          params.Price,
		Note:           note,
		Status:         StatusPending,
		CounterOfferID: params.CounterOfferID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.Record(Created{Snapshot: o.snapshot(o.ProposerID), CounterOfferID: o.CounterOfferID})
	return o, nil
}

// Recipient is the party expected to answer the offer.
func (o *Offer) Recipient() string {
	if o.ProposerID == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}

func (o *Offer) IsParty(userID string) bool {
	return userID != "" && (userID == o.BuyerID || userID == o.SellerID)
}

func (o *Offer) checkAnswer(actorID string) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: offer is %s", ErrIllegalTransition, o.Status)
	}
	if actorID != o.Recipient() {
		return fmt.Errorf("%w: only the recipient may answer", ErrIllegalTransition)
	}
	return nil
}

func (o *Offer) Accept(actorID string, now time.Time) error {
	if err := o.checkAnswer(actorID); err != nil {
		return err
	}
	o.Status = StatusAccepted
	o.UpdatedAt = now.UTC()
	o.Record(Accepted{Snapshot: o.snapshot(actorID)})
	return nil
}

func (o *Offer) Reject(actorID string, now time.Time) error {
	if err := o.checkAnswer(actorID); err != nil {
		return err
	}
	o.Status = StatusRejected
	o.UpdatedAt = now.UTC()
	o.Record(Rejected{Snapshot: o.snapshot(actorID)})
	return nil
}

// Counter marks the offer COUNTERED and returns the replacing PENDING offer proposed by actorID.
// Both aggregates must be saved together.
func (o *Offer) Counter(actorID string, id ID, price money.Money, note string, now time.Time) (*Offer, error) {
	if o.Status != StatusPending {
		return nil, errors.Join(fmt.Errorf("%w: offer is %s", ErrIllegalTransition, o.Status), ErrInvalidOffer)
	}
	if err := o.checkAnswer(actorID); err != nil {
		return nil, err
	}
	if err := price.SameCurrency(o.Price); err != nil {
		return nil, errors.Join(ErrInvalidOffer, err)
	}
	next, err := New(CreateParams{
		ID:             id,
		ConversationID: o.ConversationID,
		ListingID:      o.ListingID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ProposerID:     actorID,
		ListingPrice:   o.ListingPrice,
		Price:          price,
		Note:           note,
		CounterOfferID: o.ID,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	o.Status = StatusCountered
	o.UpdatedAt = now.UTC()
	o.Record(Countered{Snapshot: o.snapshot(actorID), ReplacementID: next.ID})
	return next, nil
}

func (o *Offer) snapshot(actorID string) Snapshot {
	counterpart := o.BuyerID
	if actorID == o.BuyerID {
		counterpart = o.SellerID
	}
	return Snapshot{
		OfferID:        o.ID,
		ConversationID: o.ConversationID,
		ListingID:      o.ListingID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ActorID:        actorID,
		CounterpartID:  counterpart,
		Status:         o.Status,
		Price:          o.Price,
		At:             o.UpdatedAt,
	}
}
