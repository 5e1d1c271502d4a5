package commands

import (
	"context"

	"bazaar/internal/app/routing"
)

// InMemoryBus routes commands to the handlers registered at startup.
type InMemoryBus struct {
	table *routing.Table[Command]
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{table: routing.NewTable[Command]("commands")}
}

func (b *InMemoryBus) Dispatch(ctx context.Context, cmd Command) (any, error) {
	return b.table.Run(ctx, cmd, ErrHandlerNotFound)
}

// Keys lists the registered command keys.
func (b *InMemoryBus) Keys() []string {
	return b.table.Keys()
}

func RegisterHandler[C Command, R any](bus *InMemoryBus, key string, handler Handler[C, R]) {
	if bus == nil {
		panic("commands: nil bus")
	}
	bus.table.Add(key, routing.Typed[Command, C, R](key, handler.Handle, ErrInvalidCommand))
}
