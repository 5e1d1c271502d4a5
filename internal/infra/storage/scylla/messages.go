package scylla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/shared/errs"
)

var ErrSessionMissing = errors.New("scylla session not initialized")

const messageColumns = `conversation_id, created_at, message_id, sender_id, receiver_id, kind, text, image_ref, offer_id, listing_id, offer_status, amount, currency`

// MessageStore is the append-only stream partitioned by conversation. Ids are claimed with a
// lightweight transaction on message_ids before the row is written, so replays return the
// original message.
type MessageStore struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewMessageStore(session *gocql.Session, logger *slog.Logger) *MessageStore {
	return &MessageStore{session: session, logger: logger}
}

func (s *MessageStore) Append(ctx context.Context, m *message.Message) (*message.Message, bool, error) {
	if s.session == nil {
		return nil, false, ErrSessionMissing
	}
	existing := map[string]any{}
	applied, err := s.session.
		Query(`INSERT INTO message_ids (message_id, conversation_id, created_at) VALUES (?, ?, ?) IF NOT EXISTS`,
			string(m.ID), string(m.ConversationID), m.CreatedAt).
		WithContext(ctx).
		MapScanCAS(existing)
	if err != nil {
		return nil, false, transport("claim message id", err)
	}
	if !applied {
		convID, _ := existing["conversation_id"].(string)
		at, _ := existing["created_at"].(time.Time)
		stored, err := s.get(ctx, conversation.ID(convID), at, m.ID)
		switch {
		case err == nil:
			return stored, false, nil
		case errors.Is(err, gocql.ErrNotFound):
			// The id was claimed but the row never landed; finish the earlier write.
			if s.logger != nil {
				s.logger.Warn("completing partially appended message", "message_id", m.ID, "conversation_id", convID)
			}
			m.CreatedAt = at.UTC()
		default:
			return nil, false, err
		}
	}
	if err := s.insert(ctx, m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *MessageStore) insert(ctx context.Context, m *message.Message) error {
	f := message.Flatten(m.Body)
	err := s.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(m.ConversationID), m.CreatedAt, string(m.ID), m.SenderID, m.ReceiverID,
			string(f.Kind), f.Text, f.ImageRef, f.OfferID, f.ListingID, f.OfferStatus, f.Amount, f.Currency).
		WithContext(ctx).
		Exec()
	return transport("insert message", err)
}

func (s *MessageStore) get(ctx context.Context, convID conversation.ID, at time.Time, id message.ID) (*message.Message, error) {
	iter := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at = ? AND message_id = ?`, string(convID), at, string(id)).
		WithContext(ctx).
		Iter()
	out, err := scanAll(iter)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, gocql.ErrNotFound
	}
	return out[0], nil
}

func (s *MessageStore) List(ctx context.Context, conversationID conversation.ID, page message.Page) ([]*message.Message, error) {
	if s.session == nil {
		return nil, ErrSessionMissing
	}
	var q *gocql.Query
	if page.Before.IsZero() {
		q = s.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, string(conversationID))
	} else {
		q = s.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at < ?`, string(conversationID), page.Before)
	}
	if page.Limit > 0 {
		q = q.PageSize(page.Limit)
	}
	out, err := scanLimit(q.WithContext(ctx).Iter(), page.Limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Since returns messages newer than after, oldest first.
func (s *MessageStore) Since(ctx context.Context, conversationID conversation.ID, after time.Time) ([]*message.Message, error) {
	if s.session == nil {
		return nil, ErrSessionMissing
	}
	iter := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at > ? ORDER BY created_at ASC, message_id ASC`, string(conversationID), after).
		WithContext(ctx).
		Iter()
	return scanAll(iter)
}

func (s *MessageStore) Count(ctx context.Context, conversationID conversation.ID) (int, error) {
	if s.session == nil {
		return 0, ErrSessionMissing
	}
	var n int64
	err := s.session.
		Query(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, string(conversationID)).
		WithContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, transport("count messages", err)
	}
	return int(n), nil
}

func (s *MessageStore) Last(ctx context.Context, conversationID conversation.ID) (*message.Message, error) {
	out, err := s.List(ctx, conversationID, message.Page{Limit: 1})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func scanAll(iter *gocql.Iter) ([]*message.Message, error) {
	return scanLimit(iter, 0)
}

func scanLimit(iter *gocql.Iter, limit int) ([]*message.Message, error) {
	var (
		convID, id, sender, receiver, kind string
		text, imageRef, offerID, listingID string
		offerStatus, currency              string
		amount                             int64
		createdAt                          time.Time
		out                                []*message.Message
		decodeErr                          error
	)
	for iter.Scan(&convID, &createdAt, &id, &sender, &receiver, &kind, &text, &imageRef, &offerID, &listingID, &offerStatus, &amount, &currency) {
		f := message.Fields{Kind: message.Kind(kind), Text: text, ImageRef: imageRef, OfferID: offerID, ListingID: listingID, OfferStatus: offerStatus, Amount: amount, Currency: currency}
		body, err := f.Body()
		if err != nil {
			decodeErr = err
			continue
		}
		out = append(out, &message.Message{
			ID:             message.ID(id),
			ConversationID: conversation.ID(convID),
			SenderID:       sender,
			ReceiverID:     receiver,
			Body:           body,
			CreatedAt:      createdAt.UTC(),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, transport("read messages", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

func transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.Transport, "scylla: "+op, err)
}

var _ message.Repository = (*MessageStore)(nil)
