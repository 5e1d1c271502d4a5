package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
)

// MessageRepository keeps the stream in one collection keyed by message id. Append is an upsert
// with $setOnInsert so a replayed id never fails the surrounding transaction.
type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(colMessages)}
}

func (r *MessageRepository) Append(ctx context.Context, m *message.Message) (*message.Message, bool, error) {
	doc := newMessageDocument(m)
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return nil, false, classify(err, "append message", nil)
	}
	if res.UpsertedCount == 1 {
		return m, true, nil
	}
	var existing messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&existing); err != nil {
		return nil, false, classify(err, "load existing message", message.ErrNotFound)
	}
	stored, err := existing.toMessage()
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *MessageRepository) List(ctx context.Context, conversationID conversation.ID, page message.Page) ([]*message.Message, error) {
	filter := bson.M{"conversation_id": string(conversationID)}
	if !page.Before.IsZero() {
		filter["created_at"] = bson.M{"$lt": page.Before.UnixMilli()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) Since(ctx context.Context, conversationID conversation.ID, after time.Time) ([]*message.Message, error) {
	filter := bson.M{"conversation_id": string(conversationID), "created_at": bson.M{"$gt": toMillis(after)}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) Count(ctx context.Context, conversationID conversation.ID) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"conversation_id": string(conversationID)})
	if err != nil {
		return 0, classify(err, "count messages", nil)
	}
	return int(n), nil
}

func (r *MessageRepository) Last(ctx context.Context, conversationID conversation.ID) (*message.Message, error) {
	out, err := r.List(ctx, conversationID, message.Page{Limit: 1})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*message.Message, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find messages", nil)
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err, "decode messages", nil)
	}
	out := make([]*message.Message, 0, len(docs))
	for _, d := range docs {
		m, err := d.toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type messageDocument struct {
	ID             string         `bson:"_id"`
	ConversationID string         `bson:"conversation_id"`
	SenderID       string         `bson:"sender_id"`
	ReceiverID     string         `bson:"receiver_id"`
	Body           message.Fields `bson:"body"`
	CreatedAt      int64          `bson:"created_at"`
}

func newMessageDocument(m *message.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Body:           message.Flatten(m.Body),
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func (d messageDocument) toMessage() (*message.Message, error) {
	body, err := d.Body.Body()
	if err != nil {
		return nil, errors.Wrapf(err, "decode body of message %s", d.ID)
	}
	return &message.Message{
		ID:             message.ID(d.ID),
		ConversationID: conversation.ID(d.ConversationID),
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Body:           body,
		CreatedAt:      fromMillis(d.CreatedAt),
	}, nil
}

var _ message.Repository = (*MessageRepository)(nil)
