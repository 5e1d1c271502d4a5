package queries

import (
	"context"
	"errors"

	"bazaar/internal/app/identity"
	"bazaar/internal/app/routing"
)

// Query is a read request routed by key. Results are scoped to the acting principal.
type Query interface {
	Key() string
	identity.Acting
}

type (
	Handler[Q Query, R any]     = routing.Handler[Q, R]
	HandlerFunc[Q Query, R any] = routing.HandlerFunc[Q, R]
)

type Bus interface {
	Ask(ctx context.Context, query Query) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("queries: handler not found")
	ErrInvalidQuery    = errors.New("queries: invalid query for handler")
	ErrResultType      = errors.New("queries: result type mismatch")
	ErrNilBus          = errors.New("queries: nil bus")
)

func Ask[Q Query, R any](ctx context.Context, bus Bus, query Q) (R, error) {
	if bus == nil {
		var zero R
		return zero, ErrNilBus
	}
	res, err := bus.Ask(ctx, query)
	return routing.Result[R](res, err, ErrResultType)
}
