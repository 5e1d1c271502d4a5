// Package routing holds the key to handler tables behind the command and query buses.
package routing

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

type Keyed interface {
	Key() string
}

// Handler serves one message type with one result type.
type Handler[M Keyed, R any] interface {
	Handle(ctx context.Context, msg M) (R, error)
}

type HandlerFunc[M Keyed, R any] func(ctx context.Context, msg M) (R, error)

func (f HandlerFunc[M, R]) Handle(ctx context.Context, msg M) (R, error) {
	return f(ctx, msg)
}

type Route[M Keyed] func(ctx context.Context, msg M) (any, error)

// Table is filled at startup and read-only afterwards, so lookups take no lock.
type Table[M Keyed] struct {
	kind   string
	routes map[string]Route[M]
}

func NewTable[M Keyed](kind string) *Table[M] {
	return &Table[M]{kind: kind, routes: make(map[string]Route[M])}
}

// Add panics on an empty or duplicate key; both are wiring bugs.
func (t *Table[M]) Add(key string, r Route[M]) {
	if key == "" {
		panic(t.kind + ": empty key registration")
	}
	if _, dup := t.routes[key]; dup {
		panic(t.kind + ": duplicate registration for " + key)
	}
	t.routes[key] = r
}

// Run routes msg by its key. notFound is wrapped with the key when nothing is registered.
func (t *Table[M]) Run(ctx context.Context, msg M, notFound error) (any, error) {
	r, ok := t.routes[msg.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", notFound, msg.Key())
	}
	return r(ctx, msg)
}

func (t *Table[M]) Keys() []string {
	return slices.Sorted(maps.Keys(t.routes))
}

// Typed adapts a handler for the concrete message T. A message of another type yields invalid.
func Typed[M Keyed, T Keyed, R any](key string, handle func(context.Context, T) (R, error), invalid error) Route[M] {
	return func(ctx context.Context, raw M) (any, error) {
		msg, ok := any(raw).(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s", invalid, key)
		}
		return handle(ctx, msg)
	}
}

// Result asserts the bus result. A nil result is the zero R.
func Result[R any](res any, err error, mismatch error) (R, error) {
	var zero R
	if err != nil || res == nil {
		return zero, err
	}
	value, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", mismatch, res)
	}
	return value, nil
}
