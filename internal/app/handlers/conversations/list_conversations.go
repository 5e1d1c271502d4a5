package conversations

import (
	"context"
	"strings"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/queries"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
)

const (
	ListConversationsKey = "conversations.list"
	GetConversationKey   = "conversations.get"
)

// ListConversationsQuery lists the actor's conversations, most recent activity first.
type ListConversationsQuery struct {
	Actor  identity.Principal
	Cursor string
	Limit  int
}

func (q ListConversationsQuery) Key() string                         { return ListConversationsKey }
func (q ListConversationsQuery) ActingPrincipal() identity.Principal { return q.Actor }

type ListConversationsHandler struct {
	UoWFactory uow.UoWFactory
	Listings   policies.ListingPort
}

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) (dto.ConversationList, error) {
	cursorAt, cursorID, err := dto.ParseActivityCursor(q.Cursor)
	if err != nil {
		return dto.ConversationList{}, err
	}
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ConversationList{}, err
	}
	defer unit.Close()

	items, err := unit.Conversations().ListByParticipant(unit.Ctx, q.Actor.UserID)
	if err != nil {
		return dto.ConversationList{}, err
	}
	conversation.SortByActivity(items)

	limit := dto.NormalizeLimit(q.Limit)
	titles := support.Titles(ctx, h.Listings)
	out := dto.ConversationList{Items: make([]dto.Conversation, 0, min(limit, len(items)))}
	for _, c := range items {
		if cursorID != "" {
			activity := c.LastActivity()
			if activity.After(cursorAt) {
				continue
			}
			if activity.Equal(cursorAt) && string(c.ID) >= cursorID {
				continue
			}
		}
		out.Items = append(out.Items, dto.MapConversation(c, q.Actor.UserID, titles))
		if len(out.Items) == limit {
			break
		}
	}
	if len(out.Items) == limit {
		last := out.Items[len(out.Items)-1]
		out.NextCursor = dto.ActivityCursor(last.LastActivityAt, last.ID)
	}
	return out, nil
}

type GetConversationQuery struct {
	Actor          identity.Principal
	ConversationID string
}

func (q GetConversationQuery) Key() string                         { return GetConversationKey }
func (q GetConversationQuery) ActingPrincipal() identity.Principal { return q.Actor }

type GetConversationHandler struct {
	UoWFactory uow.UoWFactory
	Listings   policies.ListingPort
}

func (h *GetConversationHandler) Handle(ctx context.Context, q GetConversationQuery) (dto.Conversation, error) {
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Conversation{}, err
	}
	defer unit.Close()
	conv, err := unit.Conversations().ByID(unit.Ctx, conversation.ID(strings.TrimSpace(q.ConversationID)))
	if err != nil {
		return dto.Conversation{}, err
	}
	if !conv.HasParticipant(q.Actor.UserID) && !q.Actor.CanModerate() {
		return dto.Conversation{}, conversation.ErrNotParticipant
	}
	return dto.MapConversation(conv, q.Actor.UserID, support.Titles(ctx, h.Listings)), nil
}

var (
	_ queries.Handler[ListConversationsQuery, dto.ConversationList] = (*ListConversationsHandler)(nil)
	_ queries.Handler[GetConversationQuery, dto.Conversation]       = (*GetConversationHandler)(nil)
)
