package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/domain/conversation"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(colConversations)}
}

func (r *ConversationRepository) ByID(ctx context.Context, id conversation.ID) (*conversation.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByParticipants(ctx context.Context, a, b string) (*conversation.Conversation, error) {
	return r.findOne(ctx, bson.M{"pair_key": conversation.PairKey(a, b)})
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*conversation.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, classify(err, "load conversation", conversation.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*conversation.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, classify(err, "list conversations", nil)
	}
	defer cur.Close(ctx)
	var out []*conversation.Conversation
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, classify(err, "decode conversation", nil)
		}
		out = append(out, doc.toAggregate())
	}
	if err := cur.Err(); err != nil {
		return nil, classify(err, "list conversations", nil)
	}
	conversation.SortByActivity(out)
	return out, nil
}

// Save upserts c guarded by its version. A new conversation colliding on pair_key surfaces as
// a stale-state error so the caller reloads the existing one.
func (r *ConversationRepository) Save(ctx context.Context, c *conversation.Conversation) error {
	doc := newConversationDocument(c)
	filter := bson.M{"_id": doc.ID, "version": c.Version}
	doc.Version = c.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err := saveResult(res, err, "save conversation"); err != nil {
		return err
	}
	c.Version = doc.Version
	return nil
}

type conversationDocument struct {
	ID           string               `bson:"_id"`
	PairKey      string               `bson:"pair_key"`
	Participants []string             `bson:"participants"`
	ListingIDs   []string             `bson:"listing_ids"`
	LastMessage  *lastMessageDocument `bson:"last_message,omitempty"`
	Unread       map[string]int       `bson:"unread"`
	LastReadAt   map[string]int64     `bson:"last_read_at"`
	Blocked      map[string]bool      `bson:"blocked"`
	ReportCount  int                  `bson:"report_count"`
	LastReportAt int64                `bson:"last_report_at"`
	MessageCount int                  `bson:"message_count"`
	Active       bool                 `bson:"active"`
	LastActivity int64                `bson:"last_activity"`
	CreatedAt    int64                `bson:"created_at"`
	UpdatedAt    int64                `bson:"updated_at"`
	Version      int64                `bson:"version"`
}

type lastMessageDocument struct {
	MessageID string `bson:"message_id"`
	SenderID  string `bson:"sender_id"`
	Kind      string `bson:"kind"`
	Preview   string `bson:"preview"`
	At        int64  `bson:"at"`
}

func newConversationDocument(c *conversation.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:           string(c.ID),
		PairKey:      c.PairKey(),
		Participants: []string{c.Participants[0], c.Participants[1]},
		ListingIDs:   append([]string(nil), c.ListingIDs...),
		Unread:       c.Unread,
		LastReadAt:   make(map[string]int64, len(c.LastReadAt)),
		Blocked:      c.Blocked,
		ReportCount:  c.ReportCount,
		LastReportAt: toMillis(c.LastReportAt),
		MessageCount: c.MessageCount,
		Active:       c.Active,
		LastActivity: toMillis(c.LastActivity()),
		CreatedAt:    toMillis(c.CreatedAt),
		UpdatedAt:    toMillis(c.UpdatedAt),
		Version:      c.Version,
	}
	for user, at := range c.LastReadAt {
		doc.LastReadAt[user] = toMillis(at)
	}
	if lm := c.LastMessage; lm != nil {
		doc.LastMessage = &lastMessageDocument{MessageID: lm.MessageID, SenderID: lm.SenderID, Kind: lm.Kind, Preview: lm.Preview, At: toMillis(lm.At)}
	}
	return doc
}

func (d conversationDocument) toAggregate() *conversation.Conversation {
	c := &conversation.Conversation{
		ID:           conversation.ID(d.ID),
		ListingIDs:   d.ListingIDs,
		Unread:       map[string]int{},
		LastReadAt:   make(map[string]time.Time, len(d.LastReadAt)),
		Blocked:      map[string]bool{},
		ReportCount:  d.ReportCount,
		LastReportAt: fromMillis(d.LastReportAt),
		MessageCount: d.MessageCount,
		Active:       d.Active,
		CreatedAt:    fromMillis(d.CreatedAt),
		UpdatedAt:    fromMillis(d.UpdatedAt),
		Version:      d.Version,
	}
	if len(d.Participants) == 2 {
		c.Participants = [2]string{d.Participants[0], d.Participants[1]}
	}
	for user, n := range d.Unread {
		c.Unread[user] = n
	}
	for user, b := range d.Blocked {
		c.Blocked[user] = b
	}
	for user, ms := range d.LastReadAt {
		c.LastReadAt[user] = fromMillis(ms)
	}
	if lm := d.LastMessage; lm != nil {
		c.LastMessage = &conversation.LastMessage{MessageID: lm.MessageID, SenderID: lm.SenderID, Kind: lm.Kind, Preview: lm.Preview, At: fromMillis(lm.At)}
	}
	return c
}

// toMillis keeps zero times at zero so they survive a round trip.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var _ conversation.Repository = (*ConversationRepository)(nil)
