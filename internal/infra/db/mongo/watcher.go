package mongo

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/app/feed"
	"bazaar/internal/domain/shared/errs"
)

// Watcher turns change streams on the conversation collection into feed signals. Every message
// append refreshes its conversation summary, so conversations alone cover both topics.
type Watcher struct {
	col    *mongo.Collection
	logger *slog.Logger
}

func NewWatcher(db *mongo.Database, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{col: db.Collection(colConversations), logger: logger}
}

func (w *Watcher) Watch(ctx context.Context, topic feed.Topic) (<-chan struct{}, error) {
	var match bson.D
	switch topic.Kind {
	case feed.TopicConversation:
		match = bson.D{{Key: "documentKey._id", Value: topic.ID}}
	case feed.TopicParticipant:
		match = bson.D{{Key: "fullDocument.participants", Value: topic.ID}}
	default:
		return nil, errs.New(errs.Validation, "mongo: unknown feed topic "+string(topic.Kind))
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := w.col.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, classify(err, "open change stream", nil)
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			select {
			case out <- struct{}{}:
			default:
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			w.logger.Warn("change stream closed", "topic", topic.Kind, "id", topic.ID, "error", err)
		}
	}()
	return out, nil
}

var _ feed.Watcher = (*Watcher)(nil)
