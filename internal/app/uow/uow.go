package uow

import (
	"context"

	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/report"
)

// UnitOfWork groups repository writes that commit or roll back together. Message appends are
// the exception: the stream is append-only and idempotent, so implementations may write it
// outside the transaction.
type UnitOfWork interface {
	Conversations() conversation.Repository
	Messages() message.Repository
	Offers() offer.Repository
	Blocks() block.Repository
	Reports() report.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}
