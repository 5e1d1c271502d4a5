package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/shared/money"
)

// OfferRepository stores offers; the one_pending_offer partial index rejects a second pending
// offer for the same listing of a conversation.
type OfferRepository struct {
	col *mongo.Collection
}

func NewOfferRepository(db *mongo.Database) *OfferRepository {
	return &OfferRepository{col: db.Collection(colOffers)}
}

func (r *OfferRepository) ByID(ctx context.Context, id offer.ID) (*offer.Offer, error) {
	var doc offerDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, classify(err, "load offer", offer.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *OfferRepository) PendingFor(ctx context.Context, conversationID conversation.ID, listingID string) (*offer.Offer, error) {
	var doc offerDocument
	filter := bson.M{"conversation_id": string(conversationID), "listing_id": listingID, "status": string(offer.StatusPending)}
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "load pending offer", nil)
	}
	return doc.toAggregate(), nil
}

func (r *OfferRepository) ListByConversation(ctx context.Context, conversationID conversation.ID) ([]*offer.Offer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"conversation_id": string(conversationID)}, opts)
	if err != nil {
		return nil, classify(err, "list offers", nil)
	}
	var docs []offerDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err, "decode offers", nil)
	}
	out := make([]*offer.Offer, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func (r *OfferRepository) Save(ctx context.Context, o *offer.Offer) error {
	doc := newOfferDocument(o)
	filter := bson.M{"_id": doc.ID, "version": o.Version}
	doc.Version = o.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err := saveResult(res, err, "save offer"); err != nil {
		return err
	}
	o.Version = doc.Version
	return nil
}

type offerDocument struct {
	ID             string        `bson:"_id"`
	ConversationID string        `bson:"conversation_id"`
	ListingID      string        `bson:"listing_id"`
	BuyerID        string        `bson:"buyer_id"`
	SellerID       string        `bson:"seller_id"`
	ProposerID     string        `bson:"proposer_id"`
	ListingPrice   moneyDocument `bson:"listing_price"`
	Price          moneyDocument `bson:"price"`
	Note           string        `bson:"note,omitempty"`
	Status         string        `bson:"status"`
	CounterOfferID string        `bson:"counter_offer_id,omitempty"`
	CreatedAt      int64         `bson:"created_at"`
	UpdatedAt      int64         `bson:"updated_at"`
	Version        int64         `bson:"version"`
}

type moneyDocument struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

func newOfferDocument(o *offer.Offer) offerDocument {
	return offerDocument{
		ID:             string(o.ID),
		ConversationID: string(o.ConversationID),
		ListingID:      o.ListingID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ProposerID:     o.ProposerID,
		ListingPrice:   moneyDocument{Amount: o.ListingPrice.Amount, Currency: o.ListingPrice.Currency},
		Price:          moneyDocument{Amount: o.Price.Amount, Currency: o.Price.Currency},
		Note:           o.Note,
		Status:         string(o.Status),
		CounterOfferID: string(o.CounterOfferID),
		CreatedAt:      toMillis(o.CreatedAt),
		UpdatedAt:      toMillis(o.UpdatedAt),
		Version:        o.Version,
	}
}

func (d offerDocument) toAggregate() *offer.Offer {
	return &offer.Offer{
		ID:             offer.ID(d.ID),
		ConversationID: conversation.ID(d.ConversationID),
		ListingID:      d.ListingID,
		BuyerID:        d.BuyerID,
		SellerID:       d.SellerID,
		ProposerID:     d.ProposerID,
		ListingPrice:   money.Money{Amount: d.ListingPrice.Amount, Currency: d.ListingPrice.Currency},
		Price:          money.Money{Amount: d.Price.Amount, Currency: d.Price.Currency},
		Note:           d.Note,
		Status:         offer.Status(d.Status),
		CounterOfferID: offer.ID(d.CounterOfferID),
		CreatedAt:      fromMillis(d.CreatedAt),
		UpdatedAt:      fromMillis(d.UpdatedAt),
		Version:        d.Version,
	}
}

var _ offer.Repository = (*OfferRepository)(nil)
