// Package engine assembles the command and query buses over a set of stores and collaborators.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/feed"
	"bazaar/internal/app/handlers/blocks"
	"bazaar/internal/app/handlers/conversations"
	"bazaar/internal/app/handlers/offers"
	"bazaar/internal/app/handlers/reports"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/middleware"
	"bazaar/internal/app/outbox"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/queries"
	"bazaar/internal/app/uow"
)

var ErrMissingDependency = errors.New("engine: missing dependency")

type Deps struct {
	UoWFactory  uow.UoWFactory
	Outbox      outbox.Outbox
	Idempotency middleware.IdempotencyStore
	Watcher     feed.Watcher
	Clock       policies.MessageClock
	Listings    policies.ListingPort
	Images      policies.ImageResolver
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
}

type Engine struct {
	Commands commands.Bus
	Queries  queries.Bus
	Stream   *support.Stream
}

// New registers every handler and wraps the buses. Command middleware order: logging, recover,
// authorization, validation, idempotency, outbox flush, transaction.
func New(d Deps) (*Engine, error) {
	if d.UoWFactory == nil || d.Outbox == nil || d.Watcher == nil || d.Clock == nil || d.Listings == nil || d.Idempotency == nil {
		return nil, ErrMissingDependency
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	encoder := outbox.JSONEventEncoder{}
	stream := &support.Stream{
		UoWFactory: d.UoWFactory,
		Clock:      d.Clock,
		Outbox:     d.Outbox,
		Encoder:    encoder,
		Logger:     logger,
		Now:        d.Now,
	}
	offerDeps := offers.Deps{
		UoWFactory: d.UoWFactory,
		Stream:     stream,
		Outbox:     d.Outbox,
		Encoder:    encoder,
		Logger:     logger,
		Now:        d.Now,
	}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler[conversations.CreateConversationCommand, *dto.Conversation](commandBus, conversations.CreateConversationKey, &conversations.CreateConversationHandler{
		UoWFactory: d.UoWFactory,
		Listings:   d.Listings,
		Stream:     stream,
		Outbox:     d.Outbox,
		Encoder:    encoder,
		Logger:     logger,
		Now:        d.Now,
	})
	commands.RegisterHandler[conversations.SendMessageCommand, dto.Message](commandBus, conversations.SendMessageKey, &conversations.SendMessageHandler{
		Stream: stream,
		Images: d.Images,
		Logger: logger,
	})
	commands.RegisterHandler[conversations.MarkConversationReadCommand, dto.Conversation](commandBus, conversations.MarkConversationReadKey, &conversations.MarkConversationReadHandler{
		UoWFactory: d.UoWFactory,
		Listings:   d.Listings,
		Now:        d.Now,
	})

	commands.RegisterHandler[offers.CreateOfferCommand, *dto.Offer](commandBus, offers.CreateOfferKey, &offers.CreateOfferHandler{Deps: offerDeps, Listings: d.Listings})
	answer := &offers.AnswerOfferHandler{Deps: offerDeps}
	commands.RegisterHandler[offers.AcceptOfferCommand, dto.Offer](commandBus, offers.AcceptOfferKey, commands.HandlerFunc[offers.AcceptOfferCommand, dto.Offer](answer.Accept))
	commands.RegisterHandler[offers.RejectOfferCommand, dto.Offer](commandBus, offers.RejectOfferKey, commands.HandlerFunc[offers.RejectOfferCommand, dto.Offer](answer.Reject))
	commands.RegisterHandler[offers.CounterOfferCommand, dto.CounterResult](commandBus, offers.CounterOfferKey, &offers.CounterOfferHandler{Deps: offerDeps, NewID: d.NewID})

	blockHandler := &blocks.Handler{UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: encoder, Logger: logger, Now: d.Now}
	commands.RegisterHandler[blocks.BlockUserCommand, dto.BlockEntry](commandBus, blocks.BlockUserKey, commands.HandlerFunc[blocks.BlockUserCommand, dto.BlockEntry](blockHandler.Block))
	commands.RegisterHandler[blocks.UnblockUserCommand, dto.BlockEntry](commandBus, blocks.UnblockUserKey, commands.HandlerFunc[blocks.UnblockUserCommand, dto.BlockEntry](blockHandler.Unblock))

	reportHandler := &reports.Handler{UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: encoder, Logger: logger, Now: d.Now}
	commands.RegisterHandler[reports.FileReportCommand, *dto.Report](commandBus, reports.FileReportKey, commands.HandlerFunc[reports.FileReportCommand, *dto.Report](reportHandler.File))
	commands.RegisterHandler[reports.ResolveReportCommand, dto.Report](commandBus, reports.ResolveReportKey, commands.HandlerFunc[reports.ResolveReportCommand, dto.Report](reportHandler.Resolve))
	commands.RegisterHandler[reports.DismissReportCommand, dto.Report](commandBus, reports.DismissReportKey, commands.HandlerFunc[reports.DismissReportCommand, dto.Report](reportHandler.Dismiss))

	queryBus := queries.NewInMemoryBus()
	listConversations := &conversations.ListConversationsHandler{UoWFactory: d.UoWFactory, Listings: d.Listings}
	listMessages := &conversations.ListMessagesHandler{UoWFactory: d.UoWFactory, Images: d.Images, Logger: logger}
	queries.RegisterHandler[conversations.ListConversationsQuery, dto.ConversationList](queryBus, conversations.ListConversationsKey, listConversations)
	queries.RegisterHandler[conversations.GetConversationQuery, dto.Conversation](queryBus, conversations.GetConversationKey, &conversations.GetConversationHandler{UoWFactory: d.UoWFactory, Listings: d.Listings})
	queries.RegisterHandler[conversations.ListMessagesQuery, dto.MessageList](queryBus, conversations.ListMessagesKey, listMessages)
	queries.RegisterHandler[conversations.WatchConversationsQuery, feed.Feed[dto.ConversationList]](queryBus, conversations.WatchConversationsKey, &conversations.WatchConversationsHandler{List: listConversations, Watcher: d.Watcher})
	queries.RegisterHandler[conversations.WatchMessagesQuery, feed.Feed[dto.MessageList]](queryBus, conversations.WatchMessagesKey, &conversations.WatchMessagesHandler{List: listMessages, Watcher: d.Watcher})

	offerQueries := &offers.QueryHandler{UoWFactory: d.UoWFactory}
	queries.RegisterHandler[offers.ListOffersQuery, dto.OfferList](queryBus, offers.ListOffersKey, queries.HandlerFunc[offers.ListOffersQuery, dto.OfferList](offerQueries.List))
	queries.RegisterHandler[offers.GetOfferQuery, dto.Offer](queryBus, offers.GetOfferKey, queries.HandlerFunc[offers.GetOfferQuery, dto.Offer](offerQueries.Get))
	queries.RegisterHandler[blocks.ListBlockedQuery, dto.BlockList](queryBus, blocks.ListBlockedKey, &blocks.ListBlockedHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler[reports.ListReportsQuery, dto.ReportList](queryBus, reports.ListReportsKey, &reports.ListReportsHandler{UoWFactory: d.UoWFactory})

	authorizer := identity.Authorizer{}
	validator := middleware.SelfValidator{}
	return &Engine{
		Commands: middleware.ChainCommands(
			commandBus,
			middleware.Logging(logger),
			middleware.Recover(logger),
			middleware.Authorization(authorizer, logger),
			middleware.Validation(validator),
			middleware.Idempotency(d.Idempotency, nil),
			middleware.OutboxFlush(d.Outbox, logger),
			middleware.Transaction(d.UoWFactory, nil),
		),
		Queries: middleware.ChainQueries(
			queryBus,
			middleware.QueryAuthorization(authorizer, logger),
			middleware.QueryValidation(validator),
		),
		Stream: stream,
	}, nil
}
