package queries

import (
	"context"

	"bazaar/internal/app/routing"
)

type InMemoryBus struct {
	table *routing.Table[Query]
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{table: routing.NewTable[Query]("queries")}
}

func (b *InMemoryBus) Ask(ctx context.Context, query Query) (any, error) {
	return b.table.Run(ctx, query, ErrHandlerNotFound)
}

func (b *InMemoryBus) Keys() []string {
	return b.table.Keys()
}

func RegisterHandler[Q Query, R any](bus *InMemoryBus, key string, handler Handler[Q, R]) {
	if bus == nil {
		panic("queries: nil bus")
	}
	bus.table.Add(key, routing.Typed[Query, Q, R](key, handler.Handle, ErrInvalidQuery))
}
