package message

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/shared/errs"
)

var (
	ErrNotFound        = errs.New(errs.NotFound, "message: not found")
	ErrSenderRequired  = errs.New(errs.Validation, "message: sender and receiver required")
	ErrSelfMessage     = errs.New(errs.Validation, "message: sender and receiver must differ")
	ErrTimestampNeeded = errs.New(errs.Validation, "message: timestamp required")
)

// namespace scopes message ids derived from client idempotency keys.
var namespace = uuid.MustParse("6f1c1b0e-4a7d-5d5e-9c57-5b0a2f3e7c11")

type ID string

type Message struct {
	ID             ID
	ConversationID conversation.ID
	SenderID       string
	ReceiverID     string
	Body           Body
	CreatedAt      time.Time
}

// Page selects messages older than Before (all when zero), newest first.
type Page struct {
	Before time.Time
	Limit  int
}

// Repository is the append-only message stream. Append never overwrites: when a message with the
// same id exists the stored one is returned with created=false.
type Repository interface {
	Append(ctx context.Context, m *Message) (stored *Message, created bool, err error)
	List(ctx context.Context, conversationID conversation.ID, page Page) ([]*Message, error)
	Since(ctx context.Context, conversationID conversation.ID, after time.Time) ([]*Message, error)
	Count(ctx context.Context, conversationID conversation.ID) (int, error)
	Last(ctx context.Context, conversationID conversation.ID) (*Message, error)
}

type NewParams struct {
	ID             ID
	ConversationID conversation.ID
	SenderID       string
	ReceiverID     string
	Body           Body
	CreatedAt      time.Time
}

func New(params NewParams) (*Message, error) {
	sender := strings.TrimSpace(params.SenderID)
	receiver := strings.TrimSpace(params.ReceiverID)
	if sender == "" || receiver == "" {
		return nil, ErrSenderRequired
	}
	if sender == receiver {
		return nil, ErrSelfMessage
	}
	if params.Body == nil {
		return nil, ErrEmptyBody
	}
	if err := params.Body.validate(); err != nil {
		return nil, err
	}
	if params.CreatedAt.IsZero() {
		return nil, ErrTimestampNeeded
	}
	if text, ok := params.Body.(Text); ok {
		params.Body = Text{Text: strings.TrimSpace(text.Text)}
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Body:           params.Body,
		CreatedAt:      params.CreatedAt.UTC(),
	}, nil
}

// IDFor derives a stable message id from the conversation, the author and an idempotency key.
func IDFor(conversationID conversation.ID, authorID, key string) ID {
	return ID(uuid.NewSHA1(namespace, []byte(string(conversationID)+"/"+authorID+"/"+key)).String())
}

// ReadBy reports whether the receiver has read the message given their read marker.
func (m *Message) ReadBy(marker time.Time) bool {
	return !marker.IsZero() && !m.CreatedAt.After(marker)
}

// CountUnread counts messages not sent by userID that are newer than the user's read marker.
func CountUnread(msgs []*Message, userID string, lastRead time.Time) int {
	n := 0
	for _, m := range msgs {
		if m.SenderID != userID && m.CreatedAt.After(lastRead) {
			n++
		}
	}
	return n
}

// Summarize derives the conversation summary from the stream: last is the newest message, total the
// stream length and recent every message newer than the conversation's earliest read marker.
func Summarize(c *conversation.Conversation, last *Message, total int, recent []*Message) conversation.Summary {
	s := conversation.Summary{Total: total, Unread: map[string]int{}}
	for _, p := range c.Participants {
		s.Unread[p] = CountUnread(recent, p, c.ReadMarker(p))
	}
	if last != nil {
		s.Last = &conversation.LastMessage{
			MessageID: string(last.ID),
			SenderID:  last.SenderID,
			Kind:      string(last.Body.Kind()),
			Preview:   last.Body.Preview(),
			At:        last.CreatedAt,
		}
	}
	return s
}
