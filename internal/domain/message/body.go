package message

import (
	"fmt"
	"strings"

	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/money"
)

type Kind string

const (
	KindText  Kind = "TEXT"
	KindImage Kind = "IMAGE"
	KindOffer Kind = "OFFER"
)

const (
	MaxTextLength = 4000
	previewLength = 140
)

var (
	ErrEmptyBody    = errs.New(errs.Validation, "message: body is empty")
	ErrBodyTooLong  = errs.New(errs.Validation, "message: text exceeds maximum length")
	ErrUnknownKind  = errs.New(errs.Validation, "message: unknown body kind")
	ErrOfferRefless = errs.New(errs.Validation, "message: offer reference requires an offer id")
)

// Body is the content of a message. The set of implementations is closed.
type Body interface {
	Kind() Kind
	Preview() string
	validate() error
}

type Text struct {
	Text string
}

func (Text) Kind() Kind { return KindText }

func (b Text) Preview() string { return snippet(b.Text, previewLength) }

func (b Text) validate() error {
	text := strings.TrimSpace(b.Text)
	if text == "" {
		return ErrEmptyBody
	}
	if len([]rune(text)) > MaxTextLength {
		return ErrBodyTooLong
	}
	return nil
}

// Image carries an opaque object-storage reference; display URLs are resolved on read.
type Image struct {
	Ref     string
	Caption string
}

func (Image) Kind() Kind { return KindImage }

func (b Image) Preview() string {
	if c := snippet(b.Caption, previewLength); c != "" {
		return "[image] " + c
	}
	return "[image]"
}

func (b Image) validate() error {
	if strings.TrimSpace(b.Ref) == "" {
		return ErrEmptyBody
	}
	if len([]rune(b.Caption)) > MaxTextLength {
		return ErrBodyTooLong
	}
	return nil
}

// OfferRef points at an offer and snapshots its price and status at the time of the transition.
type OfferRef struct {
	OfferID   string
	ListingID string
	Price     money.Money
	Status    string
}

func (OfferRef) Kind() Kind { return KindOffer }

func (b OfferRef) Preview() string {
	return fmt.Sprintf("Offer %s: %s", strings.ToLower(b.Status), b.Price.String())
}

func (b OfferRef) validate() error {
	if strings.TrimSpace(b.OfferID) == "" {
		return ErrOfferRefless
	}
	return nil
}

// Fields is the flat storage form of a Body.
type Fields struct {
	Kind        Kind   `json:"kind" bson:"kind"`
	Text        string `json:"text,omitempty" bson:"text,omitempty"`
	ImageRef    string `json:"image_ref,omitempty" bson:"image_ref,omitempty"`
	OfferID     string `json:"offer_id,omitempty" bson:"offer_id,omitempty"`
	ListingID   string `json:"listing_id,omitempty" bson:"listing_id,omitempty"`
	OfferStatus string `json:"offer_status,omitempty" bson:"offer_status,omitempty"`
	Amount      int64  `json:"amount,omitempty" bson:"amount,omitempty"`
	Currency    string `json:"currency,omitempty" bson:"currency,omitempty"`
}

func Flatten(b Body) Fields {
	switch v := b.(type) {
	case Text:
		return Fields{Kind: KindText, Text: v.Text}
	case Image:
		return Fields{Kind: KindImage, ImageRef: v.Ref, Text: v.Caption}
	case OfferRef:
		return Fields{Kind: KindOffer, OfferID: v.OfferID, ListingID: v.ListingID, OfferStatus: v.Status, Amount: v.Price.Amount, Currency: v.Price.Currency}
	default:
		return Fields{}
	}
}

func (f Fields) Body() (Body, error) {
	switch f.Kind {
	case KindText:
		return Text{Text: f.Text}, nil
	case KindImage:
		return Image{Ref: f.ImageRef, Caption: f.Text}, nil
	case KindOffer:
		return OfferRef{OfferID: f.OfferID, ListingID: f.ListingID, Status: f.OfferStatus, Price: money.Money{Amount: f.Amount, Currency: f.Currency}}, nil
	default:
		return nil, ErrUnknownKind
	}
}

func snippet(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}
