package support

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/app/outbox"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/shared/events"
)

var errNoClock = errors.New("support: message clock required")

// Stream appends to conversation message streams and keeps conversation summaries derived from
// them.
type Stream struct {
	UoWFactory uow.UoWFactory
	Clock      policies.MessageClock
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

type AppendParams struct {
	ConversationID conversation.ID
	SenderID       string
	Body           message.Body
	// Key makes retries of the same append return the stored message. A random key is used
	// when empty.
	Key string
}

// Append checks that the sender may write to the conversation and appends the message.
func (s *Stream) Append(ctx context.Context, p AppendParams) (*message.Message, error) {
	unit, err := BeginUnit(ctx, s.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	conv, err := unit.Conversations().ByID(unit.Ctx, p.ConversationID)
	if err == nil {
		err = CheckWritable(unit.Ctx, unit.Blocks(), conv, p.SenderID)
	}
	unit.Close()
	if err != nil {
		return nil, err
	}
	stored, _, err := s.record(ctx, conv, p.SenderID, p.Body, p.Key, true)
	return stored, err
}

// Record appends without permission checks; callers have already validated the write. It
// reports whether the message was new.
func (s *Stream) Record(ctx context.Context, conv *conversation.Conversation, senderID string, body message.Body, key string) (*message.Message, bool, error) {
	return s.record(ctx, conv, senderID, body, key, false)
}

// record appends the message. With recheck the write unit verifies the pair again, so a block
// or deactivation committed after the caller's check still stops the append.
func (s *Stream) record(ctx context.Context, conv *conversation.Conversation, senderID string, body message.Body, key string, recheck bool) (*message.Message, bool, error) {
	if s.Clock == nil {
		return nil, false, errNoClock
	}
	receiverID, err := conv.Counterpart(senderID)
	if err != nil {
		return nil, false, err
	}
	if key == "" {
		key = uuid.NewString()
	}
	at, err := s.Clock.Next(ctx, string(conv.ID), s.now())
	if err != nil {
		return nil, false, err
	}
	m, err := message.New(message.NewParams{
		ID:             message.IDFor(conv.ID, senderID, key),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		CreatedAt:      at,
	})
	if err != nil {
		return nil, false, err
	}

	unit, err := BeginUnit(ctx, s.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer unit.Close()
	if recheck {
		current, err := unit.Conversations().ByID(unit.Ctx, conv.ID)
		if err != nil {
			return nil, false, err
		}
		if err := CheckWritable(unit.Ctx, unit.Blocks(), current, senderID); err != nil {
			return nil, false, err
		}
	}
	stored, created, err := unit.Messages().Append(unit.Ctx, m)
	if err != nil {
		return nil, false, err
	}
	if created {
		if err := outbox.RecordDomainEvents(unit.Ctx, s.Outbox, s.Encoder, []events.DomainEvent{message.SentEvent(stored)}); err != nil {
			return nil, false, err
		}
	}
	if err := unit.Commit(); err != nil {
		return nil, false, err
	}
	if created && s.Logger != nil {
		s.Logger.Debug("message appended", "conversation_id", conv.ID, "message_id", stored.ID, "kind", stored.Body.Kind())
	}
	if _, err := s.Refresh(ctx, conv.ID); err != nil && s.Logger != nil {
		s.Logger.Warn("conversation summary refresh failed", "conversation_id", conv.ID, "error", err)
	}
	return stored, created, nil
}

// Refresh re-derives the conversation summary from the stream. A conflicting concurrent write
// triggers one re-derivation; if that conflicts too the newer writer's refresh covers it.
func (s *Stream) Refresh(ctx context.Context, id conversation.ID) (*conversation.Conversation, error) {
	var (
		conv *conversation.Conversation
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		conv, err = s.refreshOnce(ctx, id)
		if err == nil || !IsStale(err) {
			return conv, err
		}
	}
	if s.Logger != nil {
		s.Logger.Warn("conversation summary left to concurrent writer", "conversation_id", id, "error", err)
	}
	return conv, nil
}

func (s *Stream) refreshOnce(ctx context.Context, id conversation.ID) (*conversation.Conversation, error) {
	unit, err := BeginUnit(ctx, s.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer unit.Close()
	conv, err := unit.Conversations().ByID(unit.Ctx, id)
	if err != nil {
		return nil, err
	}
	summary, err := Summarize(unit.Ctx, unit.Messages(), conv)
	if err != nil {
		return conv, err
	}
	if !conv.Refresh(summary, s.now()) {
		return conv, nil
	}
	if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
		return conv, err
	}
	return conv, unit.Commit()
}

// Summarize reads what the summary needs from the stream: the newest message, the total and
// every message newer than the oldest read marker.
func Summarize(ctx context.Context, repo message.Repository, conv *conversation.Conversation) (conversation.Summary, error) {
	last, err := repo.Last(ctx, conv.ID)
	if err != nil {
		return conversation.Summary{}, err
	}
	total, err := repo.Count(ctx, conv.ID)
	if err != nil {
		return conversation.Summary{}, err
	}
	recent, err := repo.Since(ctx, conv.ID, conv.EarliestReadMarker())
	if err != nil {
		return conversation.Summary{}, err
	}
	return message.Summarize(conv, last, total, recent), nil
}

// CheckWritable rejects writes by non-participants, to inactive conversations and between
// users where either side has blocked the other.
func CheckWritable(ctx context.Context, blocks block.Repository, conv *conversation.Conversation, senderID string) error {
	counterpart, err := conv.Counterpart(senderID)
	if err != nil {
		return err
	}
	if !conv.Active {
		return conversation.ErrInactive
	}
	return block.CheckPair(ctx, blocks, senderID, counterpart)
}

func (s *Stream) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
