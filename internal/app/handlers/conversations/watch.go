package conversations

import (
	"context"
	"strings"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/feed"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/queries"
)

const (
	WatchConversationsKey = "conversations.watch"
	WatchMessagesKey      = "conversations.watch_messages"
)

// WatchConversationsQuery subscribes to the first page of the actor's conversation list.
type WatchConversationsQuery struct {
	Actor identity.Principal
	Limit int
}

func (q WatchConversationsQuery) Key() string                         { return WatchConversationsKey }
func (q WatchConversationsQuery) ActingPrincipal() identity.Principal { return q.Actor }

type WatchConversationsHandler struct {
	List    *ListConversationsHandler
	Watcher feed.Watcher
}

func (h *WatchConversationsHandler) Handle(_ context.Context, q WatchConversationsQuery) (feed.Feed[dto.ConversationList], error) {
	return feed.Feed[dto.ConversationList]{
		Watcher: h.Watcher,
		Topic:   feed.Topic{Kind: feed.TopicParticipant, ID: q.Actor.UserID},
		Load: func(ctx context.Context) (dto.ConversationList, error) {
			return h.List.Handle(ctx, ListConversationsQuery{Actor: q.Actor, Limit: q.Limit})
		},
	}, nil
}

// WatchMessagesQuery subscribes to the newest page of one conversation. Every append refreshes
// the conversation summary, so watching the conversation is enough to see new messages and read
// marker moves.
type WatchMessagesQuery struct {
	Actor          identity.Principal
	ConversationID string
	Limit          int
}

func (q WatchMessagesQuery) Key() string                         { return WatchMessagesKey }
func (q WatchMessagesQuery) ActingPrincipal() identity.Principal { return q.Actor }

type WatchMessagesHandler struct {
	List    *ListMessagesHandler
	Watcher feed.Watcher
}

func (h *WatchMessagesHandler) Handle(ctx context.Context, q WatchMessagesQuery) (feed.Feed[dto.MessageList], error) {
	id := strings.TrimSpace(q.ConversationID)
	// Unknown conversations and strangers are rejected before subscribing.
	if _, err := h.List.Handle(ctx, ListMessagesQuery{Actor: q.Actor, ConversationID: id, Limit: 1}); err != nil {
		return feed.Feed[dto.MessageList]{}, err
	}
	return feed.Feed[dto.MessageList]{
		Watcher: h.Watcher,
		Topic:   feed.Topic{Kind: feed.TopicConversation, ID: id},
		Load: func(ctx context.Context) (dto.MessageList, error) {
			return h.List.Handle(ctx, ListMessagesQuery{Actor: q.Actor, ConversationID: id, Limit: q.Limit})
		},
	}, nil
}

var (
	_ queries.Handler[WatchConversationsQuery, feed.Feed[dto.ConversationList]] = (*WatchConversationsHandler)(nil)
	_ queries.Handler[WatchMessagesQuery, feed.Feed[dto.MessageList]]           = (*WatchMessagesHandler)(nil)
)
