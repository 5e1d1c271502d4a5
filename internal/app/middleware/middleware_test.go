package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/middleware"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/shared/errs"
)

type mapStore struct {
	mu    sync.Mutex
	items map[string]middleware.IdempotencyRecord
}

func (s *mapStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *mapStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

type result struct {
	N int `json:"n"`
}

type countCmd struct{ key string }

func (countCmd) Key() string                         { return "count" }
func (c countCmd) IdempotencyKey() string            { return c.key }
func (countCmd) ResultPrototype() any                { return &result{} }
func (countCmd) ActingPrincipal() identity.Principal { return identity.Principal{UserID: "u1"} }

func bus(handler func(context.Context, countCmd) (*result, error)) *commands.InMemoryBus {
	b := commands.NewInMemoryBus()
	commands.RegisterHandler[countCmd, *result](b, "count", commands.HandlerFunc[countCmd, *result](handler))
	return b
}

func TestIdempotencyReplaysResult(t *testing.T) {
	calls := 0
	base := bus(func(context.Context, countCmd) (*result, error) {
		calls++
		return &result{N: calls}, nil
	})
	chained := middleware.ChainCommands(base, middleware.Idempotency(&mapStore{items: map[string]middleware.IdempotencyRecord{}}, nil))

	first, err := commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{key: "k"})
	require.NoError(t, err)
	second, err := commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{key: "k"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.N, second.N)

	_, err = commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyDoesNotCacheRetryableErrors(t *testing.T) {
	calls := 0
	base := bus(func(context.Context, countCmd) (*result, error) {
		calls++
		if calls == 1 {
			return nil, errs.New(errs.StaleState, "stale")
		}
		return &result{N: calls}, nil
	})
	chained := middleware.ChainCommands(base, middleware.Idempotency(&mapStore{items: map[string]middleware.IdempotencyRecord{}}, nil))

	_, err := commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{key: "k"})
	require.True(t, errs.Is(err, errs.StaleState))
	res, err := commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{key: "k"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.N)
}

func TestIdempotencyReplaysErrorKind(t *testing.T) {
	base := bus(func(context.Context, countCmd) (*result, error) {
		return nil, errs.New(errs.Blocked, "blocked")
	})
	chained := middleware.ChainCommands(base, middleware.Idempotency(&mapStore{items: map[string]middleware.IdempotencyRecord{}}, nil))
	_, _ = commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{key: "k"})
	_, err := commands.Dispatch[countCmd, *result](context.Background(), chained, countCmd{key: "k"})
	assert.Equal(t, errs.Blocked, errs.KindOf(err))
}

type fakeUnit struct {
	uow.UnitOfWork
	committed, rolledBack bool
}

func (u *fakeUnit) Commit(context.Context) error   { u.committed = true; return nil }
func (u *fakeUnit) Rollback(context.Context) error { u.rolledBack = true; return nil }

type fakeFactory struct{ units []*fakeUnit }

func (f *fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	u := &fakeUnit{}
	f.units = append(f.units, u)
	return u, nil
}

func TestTransactionCommitsOrRollsBack(t *testing.T) {
	fail := false
	base := bus(func(ctx context.Context, _ countCmd) (*result, error) {
		_, ok := uow.FromContext(ctx)
		require.True(t, ok)
		if fail {
			return nil, errors.New("boom")
		}
		return &result{}, nil
	})
	factory := &fakeFactory{}
	chained := middleware.ChainCommands(base, middleware.Transaction(factory, nil))

	_, err := chained.Dispatch(context.Background(), countCmd{})
	require.NoError(t, err)
	fail = true
	_, err = chained.Dispatch(context.Background(), countCmd{})
	require.Error(t, err)

	require.Len(t, factory.units, 2)
	assert.True(t, factory.units[0].committed)
	assert.False(t, factory.units[0].rolledBack)
	assert.True(t, factory.units[1].rolledBack)
}

type selfManaged struct{ countCmd }

func (selfManaged) Key() string        { return "self" }
func (selfManaged) ManagesUnits() bool { return true }

func TestTransactionSkipsUnitManagers(t *testing.T) {
	b := commands.NewInMemoryBus()
	commands.RegisterHandler[selfManaged, *result](b, "self", commands.HandlerFunc[selfManaged, *result](func(ctx context.Context, _ selfManaged) (*result, error) {
		_, ok := uow.FromContext(ctx)
		assert.False(t, ok)
		return &result{}, nil
	}))
	factory := &fakeFactory{}
	_, err := middleware.ChainCommands(b, middleware.Transaction(factory, nil)).Dispatch(context.Background(), selfManaged{})
	require.NoError(t, err)
	assert.Empty(t, factory.units)
}

type denyAnonymous struct{}

func (denyAnonymous) Authorize(_ context.Context, msg any) error {
	if a, ok := msg.(identity.Acting); ok && !a.ActingPrincipal().Authenticated() {
		return identity.ErrUnauthenticated
	}
	return nil
}

type anonymousCmd struct{ countCmd }

func (anonymousCmd) Key() string                         { return "anon" }
func (anonymousCmd) ActingPrincipal() identity.Principal { return identity.Principal{} }

func TestAuthorizationStopsBeforeHandler(t *testing.T) {
	called := false
	b := commands.NewInMemoryBus()
	commands.RegisterHandler[anonymousCmd, *result](b, "anon", commands.HandlerFunc[anonymousCmd, *result](func(context.Context, anonymousCmd) (*result, error) {
		called = true
		return &result{}, nil
	}))
	chained := middleware.ChainCommands(b, middleware.Authorization(denyAnonymous{}, nil))
	_, err := chained.Dispatch(context.Background(), anonymousCmd{})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	assert.False(t, called)
}

func TestRecoverReturnsErrorInsteadOfPanicking(t *testing.T) {
	base := bus(func(context.Context, countCmd) (*result, error) {
		panic("boom")
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chained := middleware.ChainCommands(base, middleware.Logging(logger), middleware.Recover(logger))

	_, err := chained.Dispatch(context.Background(), countCmd{})
	assert.ErrorIs(t, err, middleware.ErrHandlerPanic)
}

type failingValidator struct{}

func (failingValidator) Validate(context.Context, any) error { return errors.New("body is empty") }

func TestValidationClassifiesPlainErrors(t *testing.T) {
	base := bus(func(context.Context, countCmd) (*result, error) { return &result{}, nil })
	chained := middleware.ChainCommands(base, middleware.Validation(failingValidator{}))

	_, err := chained.Dispatch(context.Background(), countCmd{})
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
	assert.EqualError(t, err, "body is empty")
}
