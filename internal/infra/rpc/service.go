package rpc

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/feed"
	conversationsapp "bazaar/internal/app/handlers/conversations"
	offersapp "bazaar/internal/app/handlers/offers"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/queries"
)

const ServiceName = "bazaar.v1.Negotiation"

// PrincipalResolver turns the authorization metadata into the caller's identity.
type PrincipalResolver interface {
	Principal(token string) (identity.Principal, error)
}

type GetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
	Cursor         string `json:"cursor,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type SendMessageRequest struct {
	ConversationID  string `json:"conversation_id"`
	Text            string `json:"text,omitempty"`
	ImageRef        string `json:"image_ref,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type CreateOfferRequest struct {
	ConversationID string `json:"conversation_id"`
	ListingID      string `json:"listing_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency,omitempty"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type AnswerOfferRequest struct {
	OfferID string `json:"offer_id"`
	Accept  bool   `json:"accept"`
}

type CounterOfferRequest struct {
	OfferID  string `json:"offer_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Note     string `json:"note,omitempty"`
}

type WatchConversationsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type WatchMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit,omitempty"`
}

// NegotiationServer is the contract registered under ServiceName.
type NegotiationServer interface {
	GetConversation(context.Context, *GetConversationRequest) (*dto.Conversation, error)
	ListMessages(context.Context, *ListMessagesRequest) (*dto.MessageList, error)
	SendMessage(context.Context, *SendMessageRequest) (*dto.Message, error)
	CreateOffer(context.Context, *CreateOfferRequest) (*dto.Offer, error)
	AnswerOffer(context.Context, *AnswerOfferRequest) (*dto.Offer, error)
	CounterOffer(context.Context, *CounterOfferRequest) (*dto.CounterResult, error)
	WatchConversations(*WatchConversationsRequest, grpc.ServerStream) error
	WatchMessages(*WatchMessagesRequest, grpc.ServerStream) error
}

// Server exposes the engine's buses over gRPC. Watch calls stream one full snapshot per change.
type Server struct {
	Commands commands.Bus
	Queries  queries.Bus
	Resolver PrincipalResolver
	Logger   *slog.Logger
}

func (s *Server) principal(ctx context.Context) (identity.Principal, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	if values := md.Get("authorization"); len(values) > 0 {
		token = strings.TrimSpace(values[0])
	}
	if token == "" || s.Resolver == nil {
		return identity.Principal{}, status.Error(codes.Unauthenticated, "authentication required")
	}
	p, err := s.Resolver.Principal(token)
	if err != nil {
		return identity.Principal{}, status.Error(codes.Unauthenticated, "invalid token")
	}
	return p, nil
}

func (s *Server) GetConversation(ctx context.Context, req *GetConversationRequest) (*dto.Conversation, error) {
	user, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	q := conversationsapp.GetConversationQuery{Actor: user, ConversationID: req.ConversationID}
	out, err := queries.Ask[conversationsapp.GetConversationQuery, dto.Conversation](ctx, s.Queries, q)
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Server) ListMessages(ctx context.Context, req *ListMessagesRequest) (*dto.MessageList, error) {
	user, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	q := conversationsapp.ListMessagesQuery{Actor: user, ConversationID: req.ConversationID, Before: req.Cursor, Limit: req.Limit}
	out, err := queries.Ask[conversationsapp.ListMessagesQuery, dto.MessageList](ctx, s.Queries, q)
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*dto.Message, error) {
	user, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	cmd := conversationsapp.SendMessageCommand{
		Actor:           user,
		ConversationID:  req.ConversationID,
		Text:            req.Text,
		ImageRef:        req.ImageRef,
		ClientMessageID: req.ClientMessageID,
	}
	out, err := commands.Dispatch[conversationsapp.SendMessageCommand, dto.Message](ctx, s.Commands, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Server) CreateOffer(ctx context.Context, req *CreateOfferRequest) (*dto.Offer, error) {
	user, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	cmd := offersapp.CreateOfferCommand{
		Actor:           user,
		ConversationID:  req.ConversationID,
		ListingID:       req.ListingID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Note:            req.Note,
		IdempotencyKeyV: req.IdempotencyKey,
	}
	out, err := commands.Dispatch[offersapp.CreateOfferCommand, *dto.Offer](ctx, s.Commands, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func (s *Server) AnswerOffer(ctx context.Context, req *AnswerOfferRequest) (*dto.Offer, error) {
	user, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	var out dto.Offer
	if req.Accept {
		out, err = commands.Dispatch[offersapp.AcceptOfferCommand, dto.Offer](ctx, s.Commands, offersapp.AcceptOfferCommand{Actor: user, OfferID: req.OfferID})
	} else {
		out, err = commands.Dispatch[offersapp.RejectOfferCommand, dto.Offer](ctx, s.Commands, offersapp.RejectOfferCommand{Actor: user, OfferID: req.OfferID})
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Server) CounterOffer(ctx context.Context, req *CounterOfferRequest) (*dto.CounterResult, error) {
	user, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	cmd := offersapp.CounterOfferCommand{Actor: user, OfferID: req.OfferID, Amount: req.Amount, Currency: req.Currency, Note: req.Note}
	out, err := commands.Dispatch[offersapp.CounterOfferCommand, dto.CounterResult](ctx, s.Commands, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Server) WatchConversations(req *WatchConversationsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	user, err := s.principal(ctx)
	if err != nil {
		return err
	}
	q := conversationsapp.WatchConversationsQuery{Actor: user, Limit: req.Limit}
	f, err := queries.Ask[conversationsapp.WatchConversationsQuery, feed.Feed[dto.ConversationList]](ctx, s.Queries, q)
	if err != nil {
		return toStatus(err)
	}
	return pump(ctx, stream, f)
}

func (s *Server) WatchMessages(req *WatchMessagesRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	user, err := s.principal(ctx)
	if err != nil {
		return err
	}
	q := conversationsapp.WatchMessagesQuery{Actor: user, ConversationID: req.ConversationID, Limit: req.Limit}
	f, err := queries.Ask[conversationsapp.WatchMessagesQuery, feed.Feed[dto.MessageList]](ctx, s.Queries, q)
	if err != nil {
		return toStatus(err)
	}
	return pump(ctx, stream, f)
}

func pump[T any](ctx context.Context, stream grpc.ServerStream, f feed.Feed[T]) error {
	for snapshot, err := range f.Snapshots(ctx) {
		if err != nil {
			return toStatus(err)
		}
		if err := stream.SendMsg(&snapshot); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err()).Err()
	}
	return nil
}

var _ NegotiationServer = (*Server)(nil)
