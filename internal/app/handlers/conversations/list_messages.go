package conversations

import (
	"context"
	"log/slog"
	"strings"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/queries"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
)

const ListMessagesKey = "conversations.list_messages"

// ListMessagesQuery pages through a conversation newest first. Before is the cursor returned by
// the previous page.
type ListMessagesQuery struct {
	Actor          identity.Principal
	ConversationID string
	Before         string
	Limit          int
}

func (q ListMessagesQuery) Key() string                         { return ListMessagesKey }
func (q ListMessagesQuery) ActingPrincipal() identity.Principal { return q.Actor }

type ListMessagesHandler struct {
	UoWFactory uow.UoWFactory
	Images     policies.ImageResolver
	Logger     *slog.Logger
}

func (h *ListMessagesHandler) Handle(ctx context.Context, q ListMessagesQuery) (dto.MessageList, error) {
	before, err := dto.ParseMessageCursor(q.Before)
	if err != nil {
		return dto.MessageList{}, err
	}
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.MessageList{}, err
	}
	defer unit.Close()

	conv, err := unit.Conversations().ByID(unit.Ctx, conversation.ID(strings.TrimSpace(q.ConversationID)))
	if err != nil {
		return dto.MessageList{}, err
	}
	if !conv.HasParticipant(q.Actor.UserID) && !q.Actor.CanModerate() {
		return dto.MessageList{}, conversation.ErrNotParticipant
	}
	limit := dto.NormalizeLimit(q.Limit)
	msgs, err := unit.Messages().List(unit.Ctx, conv.ID, message.Page{Before: before, Limit: limit})
	if err != nil {
		return dto.MessageList{}, err
	}
	out := dto.MessageList{Items: make([]dto.Message, 0, len(msgs))}
	for _, m := range msgs {
		item := dto.MapMessage(m, conv.ReadMarker(m.ReceiverID))
		resolveImage(ctx, h.Images, h.Logger, &item)
		out.Items = append(out.Items, item)
	}
	if len(msgs) == limit {
		out.NextCursor = dto.MessageCursor(msgs[len(msgs)-1].CreatedAt)
	}
	return out, nil
}

var _ queries.Handler[ListMessagesQuery, dto.MessageList] = (*ListMessagesHandler)(nil)
