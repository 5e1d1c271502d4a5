package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"bazaar/internal/app/uow"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/report"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface. Messages defaults to
// the Mongo stream; a Scylla store can be plugged in instead and then writes outside the
// transaction.
type Factory struct {
	DB       *mongo.Database
	Messages message.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Begin starts a session and a snapshot transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, classify(err, "start session", nil)
	}
	txnOpts := options.Transaction().SetReadConcern(readconcern.Snapshot()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, classify(err, "start transaction", nil)
	}
	messages := f.Messages
	if messages == nil {
		messages = NewMessageRepository(f.DB)
	}
	return &Unit{
		session:       session,
		readOnly:      opts.ReadOnly,
		conversations: NewConversationRepository(f.DB),
		messages:      messages,
		offers:        NewOfferRepository(f.DB),
		blocks:        NewBlockRepository(f.DB),
		reports:       NewReportRepository(f.DB),
	}, nil
}

type Unit struct {
	session  mongo.Session
	readOnly bool

	conversations *ConversationRepository
	messages      message.Repository
	offers        *OfferRepository
	blocks        *BlockRepository
	reports       *ReportRepository
}

func (u *Unit) Conversations() conversation.Repository { return u.conversations }
func (u *Unit) Messages() message.Repository           { return u.messages }
func (u *Unit) Offers() offer.Repository               { return u.offers }
func (u *Unit) Blocks() block.Repository               { return u.blocks }
func (u *Unit) Reports() report.Repository             { return u.reports }

// Commit commits the transaction. Read-only units abort instead.
func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return classify(u.session.AbortTransaction(ctx), "end read-only transaction", nil)
	}
	if err := u.session.CommitTransaction(ctx); err != nil {
		return classify(err, "commit transaction", nil)
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return classify(u.session.AbortTransaction(ctx), "abort transaction", nil)
}

// InjectContext ensures the Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
