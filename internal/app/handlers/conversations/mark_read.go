package conversations

import (
	"context"
	"strings"
	"time"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
)

const MarkConversationReadKey = "conversations.mark_read"

// MarkConversationReadCommand moves the actor's read marker to Upto, or to the newest message
// when Upto is zero.
type MarkConversationReadCommand struct {
	Actor          identity.Principal
	ConversationID string
	Upto           time.Time
}

func (c MarkConversationReadCommand) Key() string                         { return MarkConversationReadKey }
func (c MarkConversationReadCommand) ActingPrincipal() identity.Principal { return c.Actor }

type MarkConversationReadHandler struct {
	UoWFactory uow.UoWFactory
	Listings   policies.ListingPort
	Now        func() time.Time
}

func (h *MarkConversationReadHandler) Handle(ctx context.Context, cmd MarkConversationReadCommand) (dto.Conversation, error) {
	unit, err := support.OpenUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.Conversation{}, err
	}
	defer unit.Close()

	conv, err := unit.Conversations().ByID(unit.Ctx, conversation.ID(strings.TrimSpace(cmd.ConversationID)))
	if err != nil {
		return dto.Conversation{}, err
	}
	if !conv.HasParticipant(cmd.Actor.UserID) {
		return dto.Conversation{}, conversation.ErrNotParticipant
	}
	now := h.now()
	upto := cmd.Upto.UTC()
	switch {
	case upto.IsZero() && conv.LastMessage == nil:
		return dto.MapConversation(conv, cmd.Actor.UserID, support.Titles(ctx, h.Listings)), nil
	case upto.IsZero():
		// Stream timestamps may run ahead of the wall clock after a burst.
		upto = conv.LastMessage.At
	default:
		upto = capMarker(upto, now, conv.LastMessage)
	}

	moved, err := conv.MarkRead(cmd.Actor.UserID, upto, now)
	if err != nil {
		return dto.Conversation{}, err
	}
	if moved {
		summary, err := support.Summarize(unit.Ctx, unit.Messages(), conv)
		if err != nil {
			return dto.Conversation{}, err
		}
		conv.Refresh(summary, now)
		if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
			return dto.Conversation{}, err
		}
		if err := unit.Commit(); err != nil {
			return dto.Conversation{}, err
		}
	}
	return dto.MapConversation(conv, cmd.Actor.UserID, support.Titles(ctx, h.Listings)), nil
}

// capMarker keeps a caller-supplied marker from passing both the clock and the newest message.
func capMarker(upto, now time.Time, last *conversation.LastMessage) time.Time {
	limit := now
	if last != nil && last.At.After(limit) {
		limit = last.At
	}
	if upto.After(limit) {
		return limit
	}
	return upto
}

func (h *MarkConversationReadHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[MarkConversationReadCommand, dto.Conversation] = (*MarkConversationReadHandler)(nil)
