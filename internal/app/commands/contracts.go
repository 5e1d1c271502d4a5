package commands

import (
	"context"
	"errors"

	"bazaar/internal/app/identity"
	"bazaar/internal/app/routing"
)

// Command is a write intent routed by key, issued on behalf of the acting principal.
type Command interface {
	Key() string
	identity.Acting
}

type (
	Handler[C Command, R any]     = routing.Handler[C, R]
	HandlerFunc[C Command, R any] = routing.HandlerFunc[C, R]
)

type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
)

// Dispatch sends cmd through bus and returns the handler's result as R.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	if bus == nil {
		var zero R
		return zero, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	return routing.Result[R](res, err, ErrResultType)
}
